package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gridcompute/gridcompute/internal/adapters/archive"
	"github.com/gridcompute/gridcompute/internal/core/griderrors"
	"github.com/gridcompute/gridcompute/internal/core/models"
	"github.com/gridcompute/gridcompute/internal/ports/secondary"
)

// fakeRegistry is an in-memory CaseRegistry with the same atomic
// compare-and-set semantics as the Mongo adapter. One instance is shared by
// every simulated machine in a test, the way one database is shared by the
// grid.
type fakeRegistry struct {
	mu      sync.Mutex
	cases   map[string]*models.CaseRecord
	version map[string]models.VersionRecord
	nextID  int

	// statusLog records every observed status per case, for transition checks.
	statusLog map[string][]models.CaseStatus
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		cases:     make(map[string]*models.CaseRecord),
		version:   make(map[string]models.VersionRecord),
		statusLog: make(map[string][]models.CaseStatus),
	}
}

func (f *fakeRegistry) NewID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	return fmt.Sprintf("%024d", f.nextID)
}

func (f *fakeRegistry) logStatus(id string, status models.CaseStatus) {
	f.statusLog[id] = append(f.statusLog[id], status)
}

func (f *fakeRegistry) Insert(_ context.Context, rec *models.CaseRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.cases[rec.ID]; exists {
		return griderrors.New(griderrors.PermanentDB, fmt.Errorf("case %s already exists", rec.ID))
	}
	clone := cloneRecord(rec)
	f.cases[rec.ID] = &clone
	f.logStatus(rec.ID, rec.Status)
	return nil
}

func (f *fakeRegistry) Get(_ context.Context, id string) (*models.CaseRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.cases[id]
	if !ok {
		return nil, griderrors.New(griderrors.PermanentDB, fmt.Errorf("case %s not found", id))
	}
	clone := cloneRecord(rec)
	return &clone, nil
}

func (f *fakeRegistry) FindClaimable(_ context.Context, userGroup, instance string, applications []string) ([]models.CaseRecord, error) {
	apps := make(map[string]bool, len(applications))
	for _, a := range applications {
		apps[a] = true
	}
	return f.findWhere(func(rec *models.CaseRecord) bool {
		return rec.UserGroup == userGroup && rec.Instance == instance &&
			rec.Status == models.StatusToProcess && apps[rec.Application]
	}), nil
}

func (f *fakeRegistry) FindProcessing(_ context.Context, userGroup, instance string) ([]models.CaseRecord, error) {
	return f.findWhere(func(rec *models.CaseRecord) bool {
		return rec.UserGroup == userGroup && rec.Instance == instance &&
			rec.Status == models.StatusProcessing
	}), nil
}

func (f *fakeRegistry) FindProcessedBy(_ context.Context, userGroup, instance, originMachine string) ([]models.CaseRecord, error) {
	return f.findWhere(func(rec *models.CaseRecord) bool {
		return rec.UserGroup == userGroup && rec.Instance == instance &&
			rec.Status == models.StatusProcessed && rec.Origin.Machine == originMachine
	}), nil
}

func (f *fakeRegistry) FindByOrigin(_ context.Context, userGroup, instance string, origin models.Identity) ([]models.CaseRecord, error) {
	return f.findWhere(func(rec *models.CaseRecord) bool {
		return rec.UserGroup == userGroup && rec.Instance == instance &&
			rec.Origin.Machine == origin.Machine && rec.Origin.User == origin.User
	}), nil
}

func (f *fakeRegistry) findWhere(match func(*models.CaseRecord) bool) []models.CaseRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.CaseRecord
	for _, rec := range f.cases {
		if match(rec) {
			out = append(out, cloneRecord(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (f *fakeRegistry) Claim(_ context.Context, id string, claimer models.Identity, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.cases[id]
	if !ok || rec.Status != models.StatusToProcess {
		return false, nil
	}
	rec.Status = models.StatusProcessing
	rec.Processors.Attempts = append(rec.Processors.Attempts,
		models.ProcessorAttempt{Machine: claimer.Machine, User: claimer.User})
	rec.Processors.Current = &models.CurrentProcessor{
		Machine:   claimer.Machine,
		User:      claimer.User,
		StartedAt: now,
	}
	rec.LastHeartbeat = now
	f.logStatus(id, rec.Status)
	return true, nil
}

func (f *fakeRegistry) Heartbeat(_ context.Context, id string, claimer models.Identity, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.cases[id]
	if !ok || !heldByIdentity(rec, claimer) {
		return false, nil
	}
	rec.LastHeartbeat = now
	return true, nil
}

func (f *fakeRegistry) Complete(_ context.Context, id string, claimer models.Identity, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.cases[id]
	if !ok || !heldByIdentity(rec, claimer) {
		return false, nil
	}
	rec.Status = models.StatusProcessed
	ended := now
	rec.Processors.Current.EndedAt = &ended
	f.logStatus(id, rec.Status)
	return true, nil
}

func (f *fakeRegistry) Reclaim(_ context.Context, id string, now time.Time, grace time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.cases[id]
	if !ok || rec.Status != models.StatusProcessing || now.Sub(rec.LastHeartbeat) <= grace {
		return false, nil
	}
	rec.Status = models.StatusToProcess
	rec.Processors.Current = nil
	f.logStatus(id, rec.Status)
	return true, nil
}

func (f *fakeRegistry) MarkReceived(_ context.Context, id string, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.cases[id]
	if !ok || rec.Status != models.StatusProcessed {
		return false, nil
	}
	rec.Status = models.StatusReceived
	received := now
	rec.Origin.ReceivedAt = &received
	f.logStatus(id, rec.Status)
	return true, nil
}

func (f *fakeRegistry) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.cases, id)
	return nil
}

func (f *fakeRegistry) QueryVersion(_ context.Context, version string) (models.VersionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.version) == 0 {
		return models.VersionRecord{ID: version, Status: models.VersionUncontrolled}, nil
	}
	rec, ok := f.version[version]
	if !ok {
		return models.VersionRecord{ID: version, Status: models.VersionUncontrolled}, nil
	}
	return rec, nil
}

func (f *fakeRegistry) Close(context.Context) error { return nil }

// statusHistory returns every status the registry observed for a case.
func (f *fakeRegistry) statusHistory(id string) []models.CaseStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.CaseStatus(nil), f.statusLog[id]...)
}

func heldByIdentity(rec *models.CaseRecord, claimer models.Identity) bool {
	if rec.Status != models.StatusProcessing || rec.Processors.Current == nil {
		return false
	}
	return rec.Processors.Current.Machine == claimer.Machine &&
		rec.Processors.Current.User == claimer.User
}

func cloneRecord(rec *models.CaseRecord) models.CaseRecord {
	clone := *rec
	clone.Processors.Attempts = append([]models.ProcessorAttempt(nil), rec.Processors.Attempts...)
	if rec.Processors.Current != nil {
		cur := *rec.Processors.Current
		clone.Processors.Current = &cur
	}
	if rec.Origin.ReceivedAt != nil {
		t := *rec.Origin.ReceivedAt
		clone.Origin.ReceivedAt = &t
	}
	return clone
}

// fakeArchive is an in-memory CaseArchive with real scratch directories.
type fakeArchive struct {
	mu      sync.Mutex
	inputs  map[string][]byte
	results map[string][]byte
	base    string
}

func newFakeArchive(base string) *fakeArchive {
	return &fakeArchive{
		inputs:  make(map[string][]byte),
		results: make(map[string][]byte),
		base:    base,
	}
}

func (a *fakeArchive) PutInput(_ context.Context, path string, bundle []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.inputs[path] = bundle
	return nil
}

func (a *fakeArchive) GetInput(_ context.Context, path string) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	b, ok := a.inputs[path]
	if !ok {
		return nil, griderrors.New(griderrors.PermanentIO, fmt.Errorf("no input at %s", path))
	}
	return b, nil
}

func (a *fakeArchive) PutResult(_ context.Context, path string, bundle []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.results[path] = bundle
	return nil
}

func (a *fakeArchive) GetResult(_ context.Context, path string) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	b, ok := a.results[path]
	if !ok {
		return nil, griderrors.New(griderrors.PermanentIO, fmt.Errorf("no result at %s", path))
	}
	return b, nil
}

func (a *fakeArchive) RemoveInput(_ context.Context, path string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.inputs, path)
	return nil
}

func (a *fakeArchive) RemoveResult(_ context.Context, path string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.results, path)
	return nil
}

func (a *fakeArchive) ScratchDir(jobID string) (string, error) {
	return os.MkdirTemp(a.base, jobID+"-")
}

func (a *fakeArchive) CleanupScratch(dir string) error { return os.RemoveAll(dir) }

func (a *fakeArchive) hasResult(path string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.results[path]
	return ok
}

func (a *fakeArchive) hasInput(path string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.inputs[path]
	return ok
}

// fakeAdapter runs in-process functions instead of subprocesses.
type fakeAdapter struct {
	send    func(ctx context.Context, selection []string) ([]secondary.BundleSpec, error)
	process func(ctx context.Context, scratch string, inputs []string) ([]string, error)
	receive func(ctx context.Context, scratch string, outputs []string) error
}

func (f fakeAdapter) Send(ctx context.Context, selection []string) ([]secondary.BundleSpec, error) {
	if f.send == nil {
		return nil, nil
	}
	return f.send(ctx, selection)
}

func (f fakeAdapter) Process(ctx context.Context, scratch string, inputs []string) ([]string, error) {
	if f.process == nil {
		return nil, nil
	}
	return f.process(ctx, scratch, inputs)
}

func (f fakeAdapter) Receive(ctx context.Context, scratch string, outputs []string) error {
	if f.receive == nil {
		return nil
	}
	return f.receive(ctx, scratch, outputs)
}

// identityProcess copies each input to an output file, byte for byte.
func identityProcess(_ context.Context, scratch string, inputs []string) ([]string, error) {
	var outputs []string
	for _, in := range inputs {
		out := filepath.Join(scratch, "result-"+filepath.Base(in))
		data, err := os.ReadFile(in)
		if err != nil {
			return nil, err
		}
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return nil, err
		}
		outputs = append(outputs, out)
	}
	return outputs, nil
}

type fakeIndex struct {
	adapters map[string]secondary.ApplicationAdapter
}

func (f fakeIndex) SupportedApplications() map[string]bool {
	out := make(map[string]bool)
	for app := range f.adapters {
		out[app] = true
	}
	return out
}

func (f fakeIndex) Adapter(app string) (secondary.ApplicationAdapter, error) {
	a, ok := f.adapters[app]
	if !ok {
		return nil, griderrors.New(griderrors.ConfigInvalid, fmt.Errorf("no adapter for %s", app))
	}
	return a, nil
}

// storeInputBundle zips the given files and places them as a case input.
func storeInputBundle(a *fakeArchive, path string, files map[string]string) error {
	src, err := os.MkdirTemp(a.base, "seed-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(src)
	names := make([]string, 0, len(files))
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(src, name), []byte(content), 0o644); err != nil {
			return err
		}
		names = append(names, name)
	}
	sort.Strings(names)
	bundle, err := archive.Bundle(src, names)
	if err != nil {
		return err
	}
	return a.PutInput(context.Background(), path, bundle)
}
