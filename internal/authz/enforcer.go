// Parley - Real-time Room Messaging Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package authz

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"

	"github.com/tomtom215/parley/internal/models"
)

//go:embed model.conf
var embeddedModel string

//go:embed policy.csv
var embeddedPolicy string

// Actions checked against a caller's room role.
const (
	ActionMessageRead      = "message:read"
	ActionMessageCreate    = "message:create"
	ActionMessageEditOwn   = "message:edit-own"
	ActionMessageDeleteOwn = "message:delete-own"
	ActionMessageDeleteAny = "message:delete-any"
	ActionPresenceRead     = "presence:read"
	ActionRoomUpdate       = "room:update"
	ActionMemberAdd        = "member:add"
	ActionMemberGrantAdmin = "member:grant-admin"
	ActionUserNotify       = "user:notify"
)

// roomObject is the only object in the room model.
const roomObject = "room"

// EnforcerConfig holds configuration for the Casbin enforcer.
type EnforcerConfig struct {
	// PolicyPath overrides the embedded policy when it names an existing file.
	PolicyPath string

	// CacheTTL is how long decisions are cached. Zero disables the cache.
	CacheTTL time.Duration
}

// DefaultEnforcerConfig returns the embedded policy with a five minute cache.
func DefaultEnforcerConfig() *EnforcerConfig {
	return &EnforcerConfig{CacheTTL: 5 * time.Minute}
}

// Enforcer maps room roles to permitted actions.
type Enforcer struct {
	config   *EnforcerConfig
	enforcer *casbin.SyncedEnforcer
	cache    *decisionCache
}

// NewEnforcer loads the room model and its policy.
func NewEnforcer(config *EnforcerConfig) (*Enforcer, error) {
	if config == nil {
		config = DefaultEnforcerConfig()
	}

	m, err := model.NewModelFromString(embeddedModel)
	if err != nil {
		return nil, fmt.Errorf("failed to load casbin model: %w", err)
	}

	var enforcer *casbin.SyncedEnforcer
	if config.PolicyPath != "" && fileExists(config.PolicyPath) {
		enforcer, err = casbin.NewSyncedEnforcer(m, fileadapter.NewAdapter(config.PolicyPath))
	} else {
		enforcer, err = casbin.NewSyncedEnforcer(m)
		if err == nil {
			err = loadEmbeddedPolicy(enforcer, embeddedPolicy)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create casbin enforcer: %w", err)
	}

	e := &Enforcer{config: config, enforcer: enforcer}
	if config.CacheTTL > 0 {
		e.cache = newDecisionCache(config.CacheTTL)
	}
	e.recordRuleCounts()
	return e, nil
}

// loadEmbeddedPolicy parses policy CSV lines of the form "p, sub, obj, act"
// and "g, child, parent".
func loadEmbeddedPolicy(enforcer *casbin.SyncedEnforcer, policy string) error {
	for _, line := range strings.Split(policy, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Split(line, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}

		switch rule := parts[1:]; parts[0] {
		case "p":
			if len(rule) != 3 {
				return fmt.Errorf("malformed policy line %q", line)
			}
			if _, err := enforcer.AddPolicy(rule[0], rule[1], rule[2]); err != nil {
				return fmt.Errorf("failed to add policy %v: %w", rule, err)
			}
		case "g":
			if len(rule) != 2 {
				return fmt.Errorf("malformed grouping line %q", line)
			}
			if _, err := enforcer.AddGroupingPolicy(rule[0], rule[1]); err != nil {
				return fmt.Errorf("failed to add grouping policy %v: %w", rule, err)
			}
		default:
			return fmt.Errorf("unknown policy type %q", parts[0])
		}
	}
	return nil
}

// Allowed reports whether role may perform action inside a room.
func (e *Enforcer) Allowed(role models.Role, action string) (bool, error) {
	start := time.Now()
	sub := string(role)

	if e.cache != nil {
		if allowed, ok := e.cache.get(sub, action); ok {
			recordDecision(sub, action, allowed, true, start)
			return allowed, nil
		}
	}

	allowed, err := e.enforcer.Enforce(sub, roomObject, action)
	if err != nil {
		AuthzErrorsTotal.WithLabelValues("enforcer_error").Inc()
		return false, fmt.Errorf("enforcement failed: %w", err)
	}
	if e.cache != nil {
		e.cache.set(sub, action, allowed)
	}
	recordDecision(sub, action, allowed, false, start)
	return allowed, nil
}

// Permissions lists every action the role holds, directly or inherited.
func (e *Enforcer) Permissions(role models.Role) ([]string, error) {
	perms, err := e.enforcer.GetImplicitPermissionsForUser(string(role))
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	seen := make(map[string]struct{}, len(perms))
	out := make([]string, 0, len(perms))
	for _, p := range perms {
		if len(p) < 3 {
			continue
		}
		if _, dup := seen[p[2]]; dup {
			continue
		}
		seen[p[2]] = struct{}{}
		out = append(out, p[2])
	}
	sort.Strings(out)
	return out, nil
}

// Reload re-reads the policy file and drops cached decisions. It is a no-op
// for the embedded policy.
func (e *Enforcer) Reload() error {
	if e.config.PolicyPath == "" || !fileExists(e.config.PolicyPath) {
		return nil
	}
	if err := e.enforcer.LoadPolicy(); err != nil {
		AuthzPolicyReloadsTotal.WithLabelValues("failure").Inc()
		return fmt.Errorf("failed to reload policy: %w", err)
	}
	AuthzPolicyReloadsTotal.WithLabelValues("success").Inc()
	if e.cache != nil {
		e.cache.clear()
	}
	e.recordRuleCounts()
	return nil
}

func (e *Enforcer) recordRuleCounts() {
	//nolint:errcheck // only fails on a nil model
	policies, _ := e.enforcer.GetPolicy()
	//nolint:errcheck // only fails on a nil model
	grouping, _ := e.enforcer.GetGroupingPolicy()
	AuthzPolicyRulesTotal.Set(float64(len(policies)))
	AuthzGroupingRulesTotal.Set(float64(len(grouping)))
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
