// Parley - Real-time Room Messaging Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package validation

import (
	"fmt"
	"strings"
	"testing"
)

func TestGetValidator_Singleton(t *testing.T) {
	v1 := GetValidator()
	v2 := GetValidator()

	if v1 != v2 {
		t.Error("GetValidator() should return the same singleton instance")
	}
	if v1 == nil {
		t.Error("GetValidator() should not return nil")
	}
}

type registerStruct struct {
	Username string `json:"username" validate:"required,min=3,max=32,username"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Avatar   string `json:"avatarUrl" validate:"omitempty,url"`
}

type memberStruct struct {
	UserID string `json:"userId" validate:"required"`
	Role   string `json:"role" validate:"omitempty,role"`
}

type roomEventStruct struct {
	RoomID string `json:"roomId" validate:"required,max=64,identifier"`
	Status string `json:"status" validate:"omitempty,oneof=online away offline"`
}

func TestValidateStruct_Valid(t *testing.T) {
	tests := []struct {
		name  string
		input interface{}
	}{
		{"register", &registerStruct{Username: "ann.lee-2", Password: "correct horse"}},
		{"register with avatar", &registerStruct{Username: "ann", Password: "12345678", Avatar: "https://cdn.example/a.png"}},
		{"member default role", &memberStruct{UserID: "u1"}},
		{"member moderator", &memberStruct{UserID: "u1", Role: "moderator"}},
		{"room event", roomEventStruct{RoomID: "0f8c7a2e-room", Status: "away"}},
		{"room id with unicode", roomEventStruct{RoomID: "café-général"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateStruct(tt.input); err != nil {
				t.Errorf("ValidateStruct() = %v, want nil", err)
			}
		})
	}
}

func TestValidateStruct_Invalid(t *testing.T) {
	tests := []struct {
		name      string
		input     interface{}
		wantField string
		wantTag   string
		wantMsg   string
	}{
		{"missing username", &registerStruct{Password: "12345678"}, "username", "required", "username is required"},
		{"short username", &registerStruct{Username: "al", Password: "12345678"}, "username", "min", "username must be at least 3 characters"},
		{"bad username chars", &registerStruct{Username: "ann lee", Password: "12345678"}, "username", "username", "username may only contain"},
		{"long password", &registerStruct{Username: "ann", Password: strings.Repeat("p", 73)}, "password", "max", "password must be at most 72 characters"},
		{"bad avatar", &registerStruct{Username: "ann", Password: "12345678", Avatar: "not a url"}, "avatarUrl", "url", "avatarUrl must be a valid URL"},
		{"unknown role", &memberStruct{UserID: "u1", Role: "owner"}, "role", "role", "role must be one of"},
		{"blank room id", roomEventStruct{RoomID: "   "}, "roomId", "identifier", "roomId must not be blank"},
		{"room id with nul", roomEventStruct{RoomID: "r1\x00"}, "roomId", "identifier", "roomId must not be blank or contain control characters"},
		{"oversized room id", roomEventStruct{RoomID: strings.Repeat("r", 70000)}, "roomId", "max", "roomId must be at most 64 characters"},
		{"unknown status", roomEventStruct{RoomID: "r1", Status: "busy"}, "status", "oneof", "status must be one of: online, away, offline"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(tt.input)
			if err == nil {
				t.Fatal("ValidateStruct() = nil, want error")
			}
			if len(err.Fields) != 1 {
				t.Fatalf("errors = %v, want exactly one", err.Fields)
			}
			fe := err.Fields[0]
			if fe.Field != tt.wantField || fe.Tag != tt.wantTag {
				t.Errorf("field/tag = %s/%s, want %s/%s", fe.Field, fe.Tag, tt.wantField, tt.wantTag)
			}
			if !strings.HasPrefix(fe.Error(), tt.wantMsg) {
				t.Errorf("message = %q, want prefix %q", fe.Error(), tt.wantMsg)
			}
		})
	}
}

func TestToAPIError_SingleError(t *testing.T) {
	err := ValidateStruct(&memberStruct{})
	if err == nil {
		t.Fatal("expected validation error")
	}
	apiErr := err.ToAPIError()
	if apiErr.Code != "VALIDATION_ERROR" {
		t.Errorf("Code = %q", apiErr.Code)
	}
	if apiErr.Message != "userId is required" {
		t.Errorf("Message = %q", apiErr.Message)
	}
	if apiErr.Details["field"] != "userId" || apiErr.Details["tag"] != "required" {
		t.Errorf("Details = %v", apiErr.Details)
	}
}

func TestToAPIError_OmitsSubmittedValues(t *testing.T) {
	secret := strings.Repeat("s", 80)
	tests := []struct {
		name  string
		input interface{}
	}{
		{"single", &registerStruct{Username: "ann", Password: secret}},
		{"multiple", &registerStruct{Username: "a b", Password: secret}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(tt.input)
			if err == nil {
				t.Fatal("expected validation error")
			}
			apiErr := err.ToAPIError()
			if _, ok := apiErr.Details["value"]; ok {
				t.Errorf("Details carries value: %v", apiErr.Details)
			}
			if strings.Contains(fmt.Sprint(apiErr.Details), secret) || strings.Contains(apiErr.Message, secret) {
				t.Errorf("submitted value leaked: %q %v", apiErr.Message, apiErr.Details)
			}
		})
	}
}

func TestToAPIError_MultipleErrors(t *testing.T) {
	err := ValidateStruct(&registerStruct{})
	if err == nil {
		t.Fatal("expected validation error")
	}
	apiErr := err.ToAPIError()
	fields, ok := apiErr.Details["fields"].([]map[string]interface{})
	if !ok || len(fields) != 2 {
		t.Fatalf("Details[fields] = %v, want two entries", apiErr.Details["fields"])
	}
	if !strings.Contains(apiErr.Message, "username: username is required") ||
		!strings.Contains(apiErr.Message, "password: password is required") {
		t.Errorf("Message = %q", apiErr.Message)
	}
	if !strings.Contains(err.Error(), "; ") {
		t.Errorf("Error() = %q, want joined messages", err.Error())
	}
}

func TestToAPIError_Empty(t *testing.T) {
	apiErr := (&Error{}).ToAPIError()
	if apiErr.Message != "Validation failed" {
		t.Errorf("Message = %q", apiErr.Message)
	}
}
