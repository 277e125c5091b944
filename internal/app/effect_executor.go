// Package app contains the application layer - service implementations and
// effect execution.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gridcompute/gridcompute/internal/core/effects"
	"github.com/gridcompute/gridcompute/internal/core/griderrors"
	"github.com/gridcompute/gridcompute/internal/ports/secondary"
)

// EffectExecutor interprets and executes effects.
// This is the "Imperative Shell" - the only place planned I/O happens.
type EffectExecutor interface {
	Execute(ctx context.Context, effs []effects.Effect) error
}

// DefaultEffectExecutor implements EffectExecutor against the real ports.
// Effects run in slice order and execution stops at the first failure, which
// is what enforces the archive-write-before-registry-transition ordering the
// planners encode.
type DefaultEffectExecutor struct {
	archive  secondary.CaseArchive
	registry secondary.CaseRegistry
	index    secondary.CapabilityIndex
	logger   *slog.Logger
}

// NewEffectExecutor creates a DefaultEffectExecutor with injected ports.
func NewEffectExecutor(archive secondary.CaseArchive, registry secondary.CaseRegistry, index secondary.CapabilityIndex, logger *slog.Logger) *DefaultEffectExecutor {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultEffectExecutor{archive: archive, registry: registry, index: index, logger: logger}
}

// Execute processes a slice of effects, executing each in sequence.
func (e *DefaultEffectExecutor) Execute(ctx context.Context, effs []effects.Effect) error {
	for _, eff := range effs {
		if err := e.executeOne(ctx, eff); err != nil {
			return fmt.Errorf("failed to execute %s effect: %w", eff.EffectType(), err)
		}
	}
	return nil
}

func (e *DefaultEffectExecutor) executeOne(ctx context.Context, eff effects.Effect) error {
	switch typed := eff.(type) {
	case effects.ArchiveEffect:
		return e.executeArchive(ctx, typed)
	case effects.RegistryEffect:
		return e.executeRegistry(ctx, typed)
	case effects.AdapterEffect:
		return e.executeAdapter(ctx, typed)
	case effects.CompositeEffect:
		return e.Execute(ctx, typed.Effects)
	case effects.NoEffect:
		return nil
	case effects.LogEffect:
		e.log(typed)
		return nil
	default:
		return fmt.Errorf("unknown effect type: %T", eff)
	}
}

func (e *DefaultEffectExecutor) executeArchive(ctx context.Context, eff effects.ArchiveEffect) error {
	switch eff.Operation {
	case "put_input":
		return e.archive.PutInput(ctx, eff.Path, eff.Bundle)
	case "put_result":
		return e.archive.PutResult(ctx, eff.Path, eff.Bundle)
	case "remove_input":
		return e.archive.RemoveInput(ctx, eff.Path)
	case "remove_result":
		return e.archive.RemoveResult(ctx, eff.Path)
	default:
		return fmt.Errorf("unknown archive operation: %s", eff.Operation)
	}
}

func (e *DefaultEffectExecutor) executeRegistry(ctx context.Context, eff effects.RegistryEffect) error {
	switch eff.Operation {
	case "insert":
		return e.registry.Insert(ctx, eff.Record)
	case "complete":
		ok, err := e.registry.Complete(ctx, eff.CaseID, eff.Claimer, eff.Now)
		if err != nil {
			return err
		}
		if !ok {
			return griderrors.New(griderrors.ClaimLost,
				fmt.Errorf("case %s was reclaimed before completion", eff.CaseID))
		}
		return nil
	case "mark_received":
		ok, err := e.registry.MarkReceived(ctx, eff.CaseID, eff.Now)
		if err != nil {
			return err
		}
		if !ok {
			// Already RECEIVED by an earlier pass that crashed before its
			// cleanup; the retry may continue.
			e.logger.Debug("case already marked received", "case", eff.CaseID)
		}
		return nil
	case "delete":
		return e.registry.Delete(ctx, eff.CaseID)
	default:
		return fmt.Errorf("unknown registry operation: %s", eff.Operation)
	}
}

func (e *DefaultEffectExecutor) executeAdapter(ctx context.Context, eff effects.AdapterEffect) error {
	switch eff.Operation {
	case "receive":
		adapter, err := e.index.Adapter(eff.Application)
		if err != nil {
			return err
		}
		return adapter.Receive(ctx, eff.ScratchDir, eff.OutputFiles)
	default:
		return fmt.Errorf("unknown adapter operation: %s", eff.Operation)
	}
}

func (e *DefaultEffectExecutor) log(eff effects.LogEffect) {
	attrs := make([]any, 0, len(eff.Fields)*2)
	for k, v := range eff.Fields {
		attrs = append(attrs, k, v)
	}
	switch eff.Level {
	case "debug":
		e.logger.Debug(eff.Message, attrs...)
	case "warn":
		e.logger.Warn(eff.Message, attrs...)
	case "error":
		e.logger.Error(eff.Message, attrs...)
	default:
		e.logger.Info(eff.Message, attrs...)
	}
}
