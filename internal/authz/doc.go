// Parley - Real-time Room Messaging Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

// Package authz decides what a room member may do.
//
// Durable membership comes from the store; the role recorded there is
// checked against a Casbin RBAC model whose roles inherit downward:
//
//	admin -> moderator -> member
//
// The embedded policy (policy.csv) grants:
//
//	member     message:read, message:create, message:edit-own,
//	           message:delete-own, presence:read
//	moderator  message:delete-any, member:add
//	admin      room:update, member:grant-admin, user:notify
//
// A file named by security.policy_path replaces the embedded policy.
//
// # Usage
//
//	enf, err := authz.NewEnforcer(&authz.EnforcerConfig{CacheTTL: time.Minute})
//	svc := authz.NewService(enf, store)
//	mw := authz.NewMiddleware(svc)
//	r.With(mw.RequireRoomAction(authz.ActionRoomUpdate)).Patch("/rooms/{roomID}", h)
package authz
