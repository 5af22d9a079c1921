// Package portunus wires the demo bank's session-revocation core: a session
// store, the identity-to-session directory, the step-up gate, and the global
// token revocation surface.
package portunus

import (
	"go.uber.org/zap"

	"github.com/portunusbank/portunus/audit"
	"github.com/portunusbank/portunus/config"
	"github.com/portunusbank/portunus/directory"
	"github.com/portunusbank/portunus/revocation"
	"github.com/portunusbank/portunus/session"
	"github.com/portunusbank/portunus/stepup"
)

// StepUpPath is the default re-authentication entry point.
const StepUpPath = "/stepup"

// Core bundles the components every deployment needs, wired against a single
// session store.
type Core struct {
	Store      session.Store
	Directory  *directory.Directory
	Gate       *stepup.Gate
	Validator  *revocation.Validator
	Revocation *revocation.Handler
}

// NewCore assembles the revocation core over the given store. Revocations
// flow through the recorder as audit events; nil falls back to log-only.
func NewCore(store session.Store, cfg config.Revocation, recorder audit.Recorder, log *zap.Logger) *Core {
	if recorder == nil {
		recorder = audit.NewZapRecorder(log)
	}
	dir := directory.New(store, log)
	dir.SetRecorder(recorder)
	validator := revocation.NewValidator(revocation.NewRemoteKeySet(cfg.JWKSURL), log)
	return &Core{
		Store:      store,
		Directory:  dir,
		Gate:       stepup.NewGate(store, StepUpPath, log),
		Validator:  validator,
		Revocation: revocation.NewHandler(validator, dir, store, cfg.Audience, cfg.Issuer, recorder, log),
	}
}
