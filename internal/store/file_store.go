package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/Kayo-b/voto-db/internal/model"
)

// fileData is the persisted document of a FileStore
type fileData struct {
	NextID       int64                             `json:"next_id"`
	Legislatures map[int]*model.LegislativePeriod  `json:"legislatures"`
	Parties      map[string]*model.Party           `json:"parties"`
	Deputies     map[int64]*model.Deputy           `json:"deputies"`
	Bills        map[int64]*model.Bill             `json:"bills"`
	Sessions     map[int64]*model.VotingSession    `json:"sessions"`
	BillSessions map[int64][]int64                 `json:"bill_sessions"`
	Votes        map[int64]*model.Vote             `json:"votes"`
	Statistics   map[int64]*model.DeputyStatistics `json:"statistics"`
	Ledger       map[string]*model.CacheEntry      `json:"ledger"`
}

type voteKey struct {
	deputyID  int64
	sessionID int64
}

// FileStore keeps every entity in memory and persists the whole set as a
// single JSON document. Writes mark the document dirty; a background loop
// writes it out every flush interval and Close writes whatever is left.
// An empty path keeps it purely in memory.
type FileStore struct {
	mu     sync.RWMutex
	path   string
	now    func() time.Time
	logger *zap.Logger
	data   fileData
	dirty  bool

	votes    map[voteKey]*model.Vote
	upstream map[string]*model.VotingSession

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewFileStore loads the document at path, if any
func NewFileStore(path string, opts ...Option) (*FileStore, error) {
	o := buildOptions(opts)
	s := &FileStore{
		path:   path,
		now:    o.now,
		logger: o.logger,
		data: fileData{
			Legislatures: make(map[int]*model.LegislativePeriod),
			Parties:      make(map[string]*model.Party),
			Deputies:     make(map[int64]*model.Deputy),
			Bills:        make(map[int64]*model.Bill),
			Sessions:     make(map[int64]*model.VotingSession),
			BillSessions: make(map[int64][]int64),
			Votes:        make(map[int64]*model.Vote),
			Statistics:   make(map[int64]*model.DeputyStatistics),
			Ledger:       make(map[string]*model.CacheEntry),
		},
	}

	if path != "" {
		if err := s.load(); err != nil {
			return nil, err
		}
	}
	s.reindex()

	if path != "" {
		s.stop = make(chan struct{})
		s.done = make(chan struct{})
		go s.flushLoop(o.flushEvery)
	}
	return s, nil
}

func (s *FileStore) load() error {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read store file %s: %w", s.path, err)
	}
	if err := sonic.Unmarshal(raw, &s.data); err != nil {
		return fmt.Errorf("failed to decode store file %s: %w", s.path, err)
	}
	return nil
}

// reindex rebuilds the lookup maps and links every session to its primary
// bill, which covers documents written before bills shared sessions
func (s *FileStore) reindex() {
	s.votes = make(map[voteKey]*model.Vote, len(s.data.Votes))
	for _, v := range s.data.Votes {
		s.votes[voteKey{v.DeputyID, v.SessionID}] = v
	}

	s.upstream = make(map[string]*model.VotingSession, len(s.data.Sessions))
	for _, vs := range s.data.Sessions {
		s.upstream[vs.UpstreamID] = vs
		s.link(vs.BillID, vs.ID)
	}
}

func (s *FileStore) flushLoop(every time.Duration) {
	defer close(s.done)

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.Flush(); err != nil {
				s.logger.Error("failed to flush store file", zap.String("path", s.path), zap.Error(err))
			}
		case <-s.stop:
			return
		}
	}
}

// Name identifies the backend
func (s *FileStore) Name() string {
	return BackendFile
}

// Ping always succeeds
func (s *FileStore) Ping(ctx context.Context) error {
	return nil
}

// Close stops the flush loop and writes pending changes
func (s *FileStore) Close() error {
	s.closeOnce.Do(func() {
		if s.stop != nil {
			close(s.stop)
			<-s.done
		}
	})
	return s.Flush()
}

// Flush writes pending changes to disk
func (s *FileStore) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flush()
}

// flush writes the document atomically when dirty; callers hold the write
// lock
func (s *FileStore) flush() error {
	if s.path == "" || !s.dirty {
		return nil
	}

	raw, err := sonic.Marshal(&s.data)
	if err != nil {
		return fmt.Errorf("failed to encode store file: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".votodb-*.json")
	if err != nil {
		return fmt.Errorf("failed to write store file: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write store file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write store file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace store file: %w", err)
	}
	s.dirty = false
	return nil
}

func (s *FileStore) nextID() int64 {
	s.data.NextID++
	return s.data.NextID
}

func (s *FileStore) timestamp() time.Time {
	return s.now().UTC()
}

// EnsureLegislature inserts a legislative period unless it already exists
func (s *FileStore) EnsureLegislature(ctx context.Context, l *model.LegislativePeriod) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Legislatures[l.ID]; ok {
		return nil
	}
	cp := *l
	cp.CreatedAt = s.timestamp()
	s.data.Legislatures[l.ID] = &cp
	l.CreatedAt = cp.CreatedAt
	s.dirty = true
	return nil
}

// GetLegislature retrieves a legislative period by number
func (s *FileStore) GetLegislature(ctx context.Context, id int) (*model.LegislativePeriod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.data.Legislatures[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *l
	return &cp, nil
}

// UpsertParty inserts or updates a party by abbreviation
func (s *FileStore) UpsertParty(ctx context.Context, p *model.Party) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.timestamp()
	existing, ok := s.data.Parties[p.Abbreviation]
	if !ok {
		cp := *p
		cp.ID = s.nextID()
		cp.CreatedAt = now
		cp.UpdatedAt = now
		s.data.Parties[p.Abbreviation] = &cp
		*p = cp
		s.dirty = true
		return nil
	}

	if p.Name != "" {
		existing.Name = p.Name
	}
	if p.URI != "" {
		existing.URI = p.URI
	}
	existing.UpdatedAt = now
	*p = *existing
	s.dirty = true
	return nil
}

func (s *FileStore) checkDeputyParents(d *model.Deputy) error {
	if _, ok := s.data.Legislatures[d.LegislatureID]; !ok {
		return fmt.Errorf("%w: legislature %d", ErrIntegrity, d.LegislatureID)
	}
	for _, p := range s.data.Parties {
		if p.ID == d.PartyID {
			return nil
		}
	}
	return fmt.Errorf("%w: party %d", ErrIntegrity, d.PartyID)
}

// UpsertDeputy inserts or updates a full deputy profile and bumps updated_at
func (s *FileStore) UpsertDeputy(ctx context.Context, d *model.Deputy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkDeputyParents(d); err != nil {
		return fmt.Errorf("failed to upsert deputy %d: %w", d.ID, err)
	}

	now := s.timestamp()
	cp := *d
	cp.CreatedAt = now
	if existing, ok := s.data.Deputies[d.ID]; ok {
		cp.CreatedAt = existing.CreatedAt
	}
	cp.UpdatedAt = now
	s.data.Deputies[d.ID] = &cp

	d.CreatedAt = cp.CreatedAt
	d.UpdatedAt = now
	s.dirty = true
	return nil
}

// EnsureDeputy inserts a summary row with a zero updated_at
func (s *FileStore) EnsureDeputy(ctx context.Context, d *model.Deputy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Deputies[d.ID]; ok {
		return nil
	}
	if err := s.checkDeputyParents(d); err != nil {
		return fmt.Errorf("failed to ensure deputy %d: %w", d.ID, err)
	}

	cp := *d
	cp.CreatedAt = s.timestamp()
	cp.UpdatedAt = time.Time{}
	s.data.Deputies[d.ID] = &cp
	s.dirty = true
	return nil
}

// GetDeputy retrieves a deputy by upstream id
func (s *FileStore) GetDeputy(ctx context.Context, id int64) (*model.Deputy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.data.Deputies[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := s.withParty(*d)
	return &cp, nil
}

func (s *FileStore) withParty(d model.Deputy) model.Deputy {
	for _, p := range s.data.Parties {
		if p.ID == d.PartyID {
			d.PartyAbbreviation = p.Abbreviation
			break
		}
	}
	return d
}

// QueryDeputies returns deputies matching the filter ordered by name
func (s *FileStore) QueryDeputies(ctx context.Context, f DeputyFilter) ([]model.Deputy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	name := strings.ToLower(f.Name)
	var out []model.Deputy
	for _, d := range s.data.Deputies {
		cp := s.withParty(*d)
		if name != "" &&
			!strings.Contains(strings.ToLower(cp.ParliamentaryName), name) &&
			!strings.Contains(strings.ToLower(cp.LegalName), name) {
			continue
		}
		if f.Party != "" && !strings.EqualFold(cp.PartyAbbreviation, f.Party) {
			continue
		}
		if f.State != "" && !strings.EqualFold(cp.State, f.State) {
			continue
		}
		out = append(out, cp)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].ParliamentaryName != out[j].ParliamentaryName {
			return out[i].ParliamentaryName < out[j].ParliamentaryName
		}
		return out[i].ID < out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *FileStore) billByCode(code string) *model.Bill {
	for _, b := range s.data.Bills {
		if b.Code == code {
			return b
		}
	}
	return nil
}

// CreateBill inserts a new bill; an existing code is a conflict
func (s *FileStore) CreateBill(ctx context.Context, b *model.Bill) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.billByCode(b.Code) != nil {
		return fmt.Errorf("failed to create bill %s: %w", b.Code, ErrConflict)
	}
	if b.Relevance == "" {
		b.Relevance = model.RelevanceLow
	}

	now := s.timestamp()
	b.ID = s.nextID()
	b.CreatedAt = now
	b.UpdatedAt = now
	cp := *b
	s.data.Bills[b.ID] = &cp
	s.dirty = true
	return nil
}

// PromoteBill turns a discovered bill into a monitored one
func (s *FileStore) PromoteBill(ctx context.Context, b *model.Bill) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.billByCode(b.Code)
	if existing == nil {
		return ErrNotFound
	}
	if existing.Monitored {
		return fmt.Errorf("%w: bill %s is already monitored", ErrConflict, b.Code)
	}

	existing.Title = b.Title
	existing.Relevance = b.Relevance
	existing.Monitored = true
	existing.UpdatedAt = s.timestamp()
	*b = *existing
	s.dirty = true
	return nil
}

// UpsertBill inserts or refreshes the upstream fields of a bill
func (s *FileStore) UpsertBill(ctx context.Context, b *model.Bill) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.timestamp()
	existing := s.billByCode(b.Code)
	if existing == nil {
		if b.Relevance == "" {
			b.Relevance = model.RelevanceLow
		}
		b.ID = s.nextID()
		b.CreatedAt = now
		b.UpdatedAt = now
		cp := *b
		s.data.Bills[b.ID] = &cp
		s.dirty = true
		return nil
	}

	existing.UpstreamID = b.UpstreamID
	existing.Summary = b.Summary
	existing.Type = b.Type
	existing.Number = b.Number
	existing.Year = b.Year
	existing.URI = b.URI
	existing.UpdatedAt = now
	*b = *existing
	s.dirty = true
	return nil
}

// GetBill retrieves a bill by local id
func (s *FileStore) GetBill(ctx context.Context, id int64) (*model.Bill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.data.Bills[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *b
	return &cp, nil
}

// GetBillByCode retrieves a bill by its natural code
func (s *FileStore) GetBillByCode(ctx context.Context, code string) (*model.Bill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b := s.billByCode(code)
	if b == nil {
		return nil, ErrNotFound
	}
	cp := *b
	return &cp, nil
}

// QueryBills returns bills matching the filter ordered by code
func (s *FileStore) QueryBills(ctx context.Context, f BillFilter) ([]model.Bill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Bill
	for _, b := range s.data.Bills {
		if f.Type != "" && b.Type != f.Type {
			continue
		}
		if f.Year > 0 && b.Year != f.Year {
			continue
		}
		if f.Relevance != "" && b.Relevance != f.Relevance {
			continue
		}
		if f.MonitoredOnly && !b.Monitored {
			continue
		}
		out = append(out, *b)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// DeleteBill removes a bill together with the sessions and votes no other
// bill links to. Shared sessions move to another linked bill.
func (s *FileStore) DeleteBill(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Bills[id]; !ok {
		return ErrNotFound
	}
	sessionIDs := s.data.BillSessions[id]
	delete(s.data.Bills, id)
	delete(s.data.BillSessions, id)

	for _, sid := range sessionIDs {
		vs, ok := s.data.Sessions[sid]
		if !ok {
			continue
		}
		if other, ok := s.linkedBill(sid); ok {
			if vs.BillID == id {
				vs.BillID = other
			}
			continue
		}
		for key, v := range s.votes {
			if key.sessionID == sid {
				delete(s.data.Votes, v.ID)
				delete(s.votes, key)
			}
		}
		delete(s.upstream, vs.UpstreamID)
		delete(s.data.Sessions, sid)
	}
	s.dirty = true
	return nil
}

// link records that billID lists sessionID
func (s *FileStore) link(billID, sessionID int64) {
	for _, sid := range s.data.BillSessions[billID] {
		if sid == sessionID {
			return
		}
	}
	s.data.BillSessions[billID] = append(s.data.BillSessions[billID], sessionID)
}

// linkedBill returns the lowest bill id still linked to sessionID
func (s *FileStore) linkedBill(sessionID int64) (int64, bool) {
	var (
		found int64
		ok    bool
	)
	for billID, sessions := range s.data.BillSessions {
		for _, sid := range sessions {
			if sid == sessionID && (!ok || billID < found) {
				found, ok = billID, true
			}
		}
	}
	return found, ok
}

// UpsertSession inserts or updates a voting session by upstream id and
// links it to vs.BillID. The first writer stays the primary bill.
func (s *FileStore) UpsertSession(ctx context.Context, vs *model.VotingSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Bills[vs.BillID]; !ok {
		return fmt.Errorf("failed to upsert voting session %s: %w: bill %d", vs.UpstreamID, ErrIntegrity, vs.BillID)
	}

	now := s.timestamp()
	existing, ok := s.upstream[vs.UpstreamID]
	if !ok {
		vs.ID = s.nextID()
		vs.CreatedAt = now
		vs.UpdatedAt = now
		cp := *vs
		s.data.Sessions[vs.ID] = &cp
		s.upstream[vs.UpstreamID] = &cp
		s.link(vs.BillID, vs.ID)
		s.dirty = true
		return nil
	}

	existing.OccurredAt = vs.OccurredAt
	existing.Description = vs.Description
	existing.Organ = vs.Organ
	existing.Outcome = vs.Outcome
	existing.Kind = vs.Kind
	existing.UpdatedAt = now
	s.link(vs.BillID, existing.ID)

	billID := vs.BillID
	*vs = *existing
	vs.BillID = billID
	s.dirty = true
	return nil
}

// ListSessions returns the sessions linked to a bill, most recent first
func (s *FileStore) ListSessions(ctx context.Context, billID int64) ([]model.VotingSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.VotingSession
	for _, sid := range s.data.BillSessions[billID] {
		vs, ok := s.data.Sessions[sid]
		if !ok {
			continue
		}
		cp := *vs
		cp.BillID = billID
		out = append(out, cp)
	}
	sortSessions(out)
	return out, nil
}

func sortSessions(sessions []model.VotingSession) {
	sort.Slice(sessions, func(i, j int) bool {
		if !sessions[i].OccurredAt.Equal(sessions[j].OccurredAt) {
			return sessions[i].OccurredAt.After(sessions[j].OccurredAt)
		}
		return sessions[i].ID < sessions[j].ID
	})
}

// RecentSessions lists sessions since a point in time
func (s *FileStore) RecentSessions(ctx context.Context, f RecentFilter) ([]model.SessionSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sessions []model.VotingSession
	for _, vs := range s.data.Sessions {
		if vs.OccurredAt.Before(f.Since) {
			continue
		}
		if f.Kind != "" && vs.Kind != f.Kind {
			continue
		}
		sessions = append(sessions, *vs)
	}
	sortSessions(sessions)
	if f.Limit > 0 && len(sessions) > f.Limit {
		sessions = sessions[:f.Limit]
	}

	out := make([]model.SessionSummary, 0, len(sessions))
	for _, vs := range sessions {
		sum := model.SessionSummary{Session: vs}
		if b, ok := s.data.Bills[vs.BillID]; ok {
			sum.BillCode = b.Code
			sum.BillTitle = b.Title
		}
		for _, v := range s.data.Votes {
			if v.SessionID == vs.ID {
				sum.VotesCount++
			}
		}
		out = append(out, sum)
	}
	return out, nil
}

// UpsertVote records a deputy's vote, overwriting a previous value
func (s *FileStore) UpsertVote(ctx context.Context, v *model.Vote) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Deputies[v.DeputyID]; !ok {
		return fmt.Errorf("failed to upsert vote: %w: deputy %d", ErrIntegrity, v.DeputyID)
	}
	if _, ok := s.data.Sessions[v.SessionID]; !ok {
		return fmt.Errorf("failed to upsert vote: %w: session %d", ErrIntegrity, v.SessionID)
	}

	now := s.timestamp()
	key := voteKey{v.DeputyID, v.SessionID}
	if existing, ok := s.votes[key]; ok {
		if existing.Value != v.Value {
			existing.Value = v.Value
			existing.UpdatedAt = now
			s.dirty = true
		}
		*v = *existing
		return nil
	}

	v.ID = s.nextID()
	v.CreatedAt = now
	v.UpdatedAt = now
	cp := *v
	s.data.Votes[v.ID] = &cp
	s.votes[key] = &cp
	s.dirty = true
	return nil
}

// ListVotes returns the votes recorded in a session
func (s *FileStore) ListVotes(ctx context.Context, sessionID int64) ([]model.Vote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Vote
	for _, v := range s.data.Votes {
		if v.SessionID == sessionID {
			out = append(out, *v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeputyID < out[j].DeputyID })
	return out, nil
}

// DeputyVotes returns a deputy's voting history, most recent first
func (s *FileStore) DeputyVotes(ctx context.Context, deputyID int64, limit int) ([]model.VoteRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.VoteRecord
	for _, v := range s.data.Votes {
		if v.DeputyID != deputyID {
			continue
		}
		vs, ok := s.data.Sessions[v.SessionID]
		if !ok {
			continue
		}
		r := model.VoteRecord{
			SessionUpstreamID: vs.UpstreamID,
			OccurredAt:        vs.OccurredAt,
			Description:       vs.Description,
			Organ:             vs.Organ,
			Kind:              vs.Kind,
			Outcome:           vs.Outcome,
			Value:             v.Value,
		}
		if b, ok := s.data.Bills[vs.BillID]; ok {
			r.BillCode = b.Code
			r.BillTitle = b.Title
		}
		out = append(out, r)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].OccurredAt.After(out[j].OccurredAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// LatestVoteChange returns when any of the deputy's votes last changed
func (s *FileStore) LatestVoteChange(ctx context.Context, deputyID int64) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest time.Time
	for _, v := range s.data.Votes {
		if v.DeputyID == deputyID && v.UpdatedAt.After(latest) {
			latest = v.UpdatedAt
		}
	}
	return latest, nil
}

// GetStatistics retrieves the cached statistics of a deputy
func (s *FileStore) GetStatistics(ctx context.Context, deputyID int64) (*model.DeputyStatistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.data.Statistics[deputyID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *st
	cp.History = append([]model.BillOutcome(nil), st.History...)
	return &cp, nil
}

// UpsertStatistics replaces the statistics of a deputy
func (s *FileStore) UpsertStatistics(ctx context.Context, st *model.DeputyStatistics) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Deputies[st.DeputyID]; !ok {
		return fmt.Errorf("failed to upsert statistics: %w: deputy %d", ErrIntegrity, st.DeputyID)
	}
	if st.ComputedAt.IsZero() {
		st.ComputedAt = s.timestamp()
	}
	if existing, ok := s.data.Statistics[st.DeputyID]; ok {
		st.ID = existing.ID
	} else {
		st.ID = s.nextID()
	}

	cp := *st
	cp.History = append([]model.BillOutcome(nil), st.History...)
	s.data.Statistics[st.DeputyID] = &cp
	s.dirty = true
	return nil
}

// ClearStatistics drops every stored statistics row
func (s *FileStore) ClearStatistics(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.data.Statistics) == 0 {
		return nil
	}
	s.data.Statistics = make(map[int64]*model.DeputyStatistics)
	s.dirty = true
	return nil
}

// Counts returns the number of stored entities per kind
func (s *FileStore) Counts(ctx context.Context) (model.StoreCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c := model.StoreCounts{
		Legislatures: len(s.data.Legislatures),
		Parties:      len(s.data.Parties),
		Deputies:     len(s.data.Deputies),
		Bills:        len(s.data.Bills),
		Sessions:     len(s.data.Sessions),
		Votes:        len(s.data.Votes),
		Statistics:   len(s.data.Statistics),
	}
	for _, b := range s.data.Bills {
		if b.Monitored {
			c.Monitored++
		}
	}
	return c, nil
}

// IsFresh reports whether key has an unexpired ledger entry
func (s *FileStore) IsFresh(ctx context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.data.Ledger[key]
	if !ok {
		return false, nil
	}
	return s.now().Before(e.ExpiresAt), nil
}

// MarkFresh inserts or overwrites the entry for key
func (s *FileStore) MarkFresh(ctx context.Context, key, category string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.timestamp()
	s.data.Ledger[key] = &model.CacheEntry{
		Key:       key,
		Category:  category,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	s.dirty = true
	return nil
}

// Invalidate removes the entry for key
func (s *FileStore) Invalidate(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data.Ledger, key)
	s.dirty = true
	return nil
}

// SweepExpired deletes expired entries
func (s *FileStore) SweepExpired(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var removed int64
	for key, e := range s.data.Ledger {
		if !now.Before(e.ExpiresAt) {
			delete(s.data.Ledger, key)
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}
	s.dirty = true
	return removed, nil
}

// LedgerStats counts entries per category and how many have expired
func (s *FileStore) LedgerStats(ctx context.Context) (model.LedgerStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	stats := model.LedgerStats{ByCategory: make(map[string]int)}
	for _, e := range s.data.Ledger {
		stats.Total++
		stats.ByCategory[e.Category]++
		if !now.Before(e.ExpiresAt) {
			stats.Expired++
		}
	}
	return stats, nil
}
