package services

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Dosada05/ralli/models"
	"github.com/Dosada05/ralli/realtime"
	"github.com/Dosada05/ralli/repositories"
	"github.com/Dosada05/ralli/storage"
	"github.com/stretchr/testify/require"
)

func silentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memStore backs every fake repository. Transactions snapshot the mutable
// tables and restore them when fn fails.
type memStore struct {
	mu         sync.Mutex
	organizers map[string]*models.Organizer
	races      map[string]*models.Race
	waypoints  map[string]*models.Waypoint
	teams      map[string]*models.Team
	progress   map[string]*models.Progress
	hints      map[[2]string]bool
	clock      time.Time

	failProgressCreate error
	onAdvance          func()
}

func newMemStore() *memStore {
	return &memStore{
		organizers: map[string]*models.Organizer{},
		races:      map[string]*models.Race{},
		waypoints:  map[string]*models.Waypoint{},
		teams:      map[string]*models.Team{},
		progress:   map[string]*models.Progress{},
		hints:      map[[2]string]bool{},
		clock:      time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
}

func (m *memStore) tick() time.Time {
	m.clock = m.clock.Add(time.Second)
	return m.clock
}

type memTx struct{ s *memStore }

func (t memTx) WithinTx(ctx context.Context, fn func(exec repositories.SQLExecutor) error) error {
	t.s.mu.Lock()
	teams := make(map[string]models.Team, len(t.s.teams))
	for k, v := range t.s.teams {
		teams[k] = *v
	}
	progress := make(map[string]models.Progress, len(t.s.progress))
	for k, v := range t.s.progress {
		progress[k] = *v
	}
	hints := make(map[[2]string]bool, len(t.s.hints))
	for k, v := range t.s.hints {
		hints[k] = v
	}
	t.s.mu.Unlock()

	if err := fn(nil); err != nil {
		t.s.mu.Lock()
		defer t.s.mu.Unlock()
		t.s.teams = map[string]*models.Team{}
		for k, v := range teams {
			v := v
			t.s.teams[k] = &v
		}
		t.s.progress = map[string]*models.Progress{}
		for k, v := range progress {
			v := v
			t.s.progress[k] = &v
		}
		t.s.hints = hints
		return err
	}
	return nil
}

type memRaceRepo struct{ s *memStore }

func (r memRaceRepo) Create(ctx context.Context, exec repositories.SQLExecutor, race *models.Race) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	race.CreatedAt = r.s.tick()
	c := *race
	r.s.races[race.ID] = &c
	return nil
}

func (r memRaceRepo) GetByID(ctx context.Context, id string) (*models.Race, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	race, ok := r.s.races[id]
	if !ok {
		return nil, repositories.ErrRaceNotFound
	}
	c := *race
	return &c, nil
}

func (r memRaceRepo) FindByIDRange(ctx context.Context, lower, upper string, limit int) ([]models.Race, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []models.Race{}
	for _, race := range r.s.races {
		if race.ID >= lower && (upper == "" || race.ID < upper) {
			out = append(out, *race)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r memRaceRepo) ListByOrganizer(ctx context.Context, organizerID string) ([]models.Race, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []models.Race{}
	for _, race := range r.s.races {
		if race.OrganizerID == organizerID {
			out = append(out, *race)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r memRaceRepo) UpdateStatus(ctx context.Context, id string, status models.RaceStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	race, ok := r.s.races[id]
	if !ok {
		return repositories.ErrRaceNotFound
	}
	race.Status = status
	return nil
}

type memWaypointRepo struct{ s *memStore }

func (r memWaypointRepo) CreateBatch(ctx context.Context, exec repositories.SQLExecutor, waypoints []*models.Waypoint) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, w := range waypoints {
		for _, existing := range r.s.waypoints {
			if existing.RaceID == w.RaceID && existing.OrderIndex == w.OrderIndex {
				return repositories.ErrWaypointOrderConflict
			}
		}
		w.CreatedAt = r.s.clock
		c := *w
		r.s.waypoints[w.ID] = &c
	}
	return nil
}

func (r memWaypointRepo) GetByID(ctx context.Context, id string) (*models.Waypoint, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	w, ok := r.s.waypoints[id]
	if !ok {
		return nil, repositories.ErrWaypointNotFound
	}
	c := *w
	return &c, nil
}

func (r memWaypointRepo) GetByRaceAndOrder(ctx context.Context, raceID string, orderIndex int) (*models.Waypoint, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, w := range r.s.waypoints {
		if w.RaceID == raceID && w.OrderIndex == orderIndex {
			c := *w
			return &c, nil
		}
	}
	return nil, repositories.ErrWaypointNotFound
}

func (r memWaypointRepo) ListByRace(ctx context.Context, raceID string) ([]models.Waypoint, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []models.Waypoint{}
	for _, w := range r.s.waypoints {
		if w.RaceID == raceID {
			out = append(out, *w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderIndex < out[j].OrderIndex })
	return out, nil
}

func (r memWaypointRepo) CountByRace(ctx context.Context, raceID string) (int, error) {
	list, _ := r.ListByRace(ctx, raceID)
	return len(list), nil
}

type memTeamRepo struct{ s *memStore }

func (r memTeamRepo) Create(ctx context.Context, team *models.Team) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.races[team.RaceID]; !ok {
		return repositories.ErrTeamRaceInvalid
	}
	for _, t := range r.s.teams {
		if t.SessionToken == team.SessionToken {
			return repositories.ErrTeamTokenConflict
		}
	}
	team.CreatedAt = r.s.tick()
	team.UpdatedAt = team.CreatedAt
	c := *team
	r.s.teams[team.ID] = &c
	return nil
}

func (r memTeamRepo) GetByID(ctx context.Context, exec repositories.SQLExecutor, id string) (*models.Team, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.teams[id]
	if !ok {
		return nil, repositories.ErrTeamNotFound
	}
	c := *t
	return &c, nil
}

func (r memTeamRepo) GetBySession(ctx context.Context, raceID, token string) (*models.Team, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, t := range r.s.teams {
		if t.RaceID == raceID && t.SessionToken == token {
			c := *t
			return &c, nil
		}
	}
	return nil, repositories.ErrTeamNotFound
}

func (r memTeamRepo) ListByRace(ctx context.Context, raceID string) ([]models.Team, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []models.Team{}
	for _, t := range r.s.teams {
		if t.RaceID == raceID {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r memTeamRepo) Leaderboard(ctx context.Context, raceID string) ([]models.Team, error) {
	out, _ := r.ListByRace(ctx, raceID)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.CurrentStepIndex != b.CurrentStepIndex {
			return a.CurrentStepIndex > b.CurrentStepIndex
		}
		return a.UpdatedAt.Before(b.UpdatedAt)
	})
	return out, nil
}

func (r memTeamRepo) SetVerifiedStep(ctx context.Context, teamID string, step int) (*models.Team, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.teams[teamID]
	if !ok {
		return nil, repositories.ErrTeamNotFound
	}
	if t.CurrentStepIndex != step {
		return nil, repositories.ErrTeamStepMismatch
	}
	t.VerifiedStepIndex = &step
	t.UpdatedAt = r.s.tick()
	c := *t
	return &c, nil
}

func (r memTeamRepo) Advance(ctx context.Context, exec repositories.SQLExecutor, teamID string, expectedStep, points int) (*models.Team, error) {
	if r.s.onAdvance != nil {
		r.s.onAdvance()
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.teams[teamID]
	if !ok {
		return nil, repositories.ErrTeamNotFound
	}
	if t.CurrentStepIndex != expectedStep {
		return nil, repositories.ErrTeamStepMismatch
	}
	t.Score += points
	t.CurrentStepIndex++
	t.VerifiedStepIndex = nil
	t.UpdatedAt = r.s.tick()
	c := *t
	return &c, nil
}

func (r memTeamRepo) ForceSkip(ctx context.Context, exec repositories.SQLExecutor, teamID string, expectedStep int) (*models.Team, error) {
	return r.Advance(ctx, exec, teamID, expectedStep, 0)
}

func (r memTeamRepo) DeductHint(ctx context.Context, exec repositories.SQLExecutor, teamID string, cost int) (*models.Team, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.teams[teamID]
	if !ok {
		return nil, repositories.ErrTeamNotFound
	}
	t.Score = max(t.Score-cost, 0)
	t.UpdatedAt = r.s.tick()
	c := *t
	return &c, nil
}

type memProgressRepo struct{ s *memStore }

func (r memProgressRepo) Create(ctx context.Context, p *models.Progress) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.failProgressCreate != nil {
		return r.s.failProgressCreate
	}
	p.SubmittedAt = r.s.tick()
	c := *p
	r.s.progress[p.ID] = &c
	return nil
}

func (r memProgressRepo) GetByID(ctx context.Context, id string) (*models.Progress, error) {
	return r.GetForUpdate(ctx, nil, id)
}

func (r memProgressRepo) GetForUpdate(ctx context.Context, exec repositories.SQLExecutor, id string) (*models.Progress, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.progress[id]
	if !ok {
		return nil, repositories.ErrProgressNotFound
	}
	c := *p
	return &c, nil
}

func (r memProgressRepo) Latest(ctx context.Context, teamID, waypointID string) (*models.Progress, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var latest *models.Progress
	for _, p := range r.s.progress {
		if p.TeamID == teamID && p.WaypointID == waypointID && (latest == nil || p.SubmittedAt.After(latest.SubmittedAt)) {
			latest = p
		}
	}
	if latest == nil {
		return nil, repositories.ErrProgressNotFound
	}
	c := *latest
	return &c, nil
}

func (r memProgressRepo) ListByRace(ctx context.Context, f repositories.ListProgressFilter) ([]models.Progress, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []models.Progress{}
	for _, p := range r.s.progress {
		t := r.s.teams[p.TeamID]
		if t == nil || t.RaceID != f.RaceID {
			continue
		}
		if f.Status != nil && p.Status != *f.Status {
			continue
		}
		c := *p
		c.TeamName = t.Name
		if w := r.s.waypoints[p.WaypointID]; w != nil {
			c.WaypointName = w.Name
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if f.Newest {
			return out[i].SubmittedAt.After(out[j].SubmittedAt)
		}
		return out[i].SubmittedAt.Before(out[j].SubmittedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r memProgressRepo) UpdateReview(ctx context.Context, exec repositories.SQLExecutor, id string, status models.ProgressStatus, reason *string, reviewedAt time.Time) (*models.Progress, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.progress[id]
	if !ok {
		return nil, repositories.ErrProgressNotFound
	}
	p.Status = status
	p.RejectionReason = reason
	p.ReviewedAt = &reviewedAt
	c := *p
	return &c, nil
}

func (r memProgressRepo) RejectPendingForTeam(ctx context.Context, exec repositories.SQLExecutor, teamID, reason string, reviewedAt time.Time) ([]models.Progress, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []models.Progress{}
	for _, p := range r.s.progress {
		if p.TeamID == teamID && p.Status == models.ProgressPending {
			reason := reason
			at := reviewedAt
			p.Status = models.ProgressRejected
			p.RejectionReason = &reason
			p.ReviewedAt = &at
			out = append(out, *p)
		}
	}
	return out, nil
}

type memHintRepo struct{ s *memStore }

func (r memHintRepo) Reveal(ctx context.Context, exec repositories.SQLExecutor, teamID, waypointID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := [2]string{teamID, waypointID}
	if r.s.hints[key] {
		return false, nil
	}
	r.s.hints[key] = true
	return true, nil
}

func (r memHintRepo) IsRevealed(ctx context.Context, teamID, waypointID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.hints[[2]string{teamID, waypointID}], nil
}

type memOrganizerRepo struct{ s *memStore }

func (r memOrganizerRepo) Create(ctx context.Context, o *models.Organizer) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.organizers {
		if strings.EqualFold(existing.Email, o.Email) {
			return repositories.ErrOrganizerEmailConflict
		}
	}
	o.CreatedAt = r.s.tick()
	c := *o
	r.s.organizers[o.ID] = &c
	return nil
}

func (r memOrganizerRepo) GetByID(ctx context.Context, id string) (*models.Organizer, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.organizers[id]
	if !ok {
		return nil, repositories.ErrOrganizerNotFound
	}
	c := *o
	return &c, nil
}

func (r memOrganizerRepo) GetByEmail(ctx context.Context, email string) (*models.Organizer, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, o := range r.s.organizers {
		if strings.EqualFold(o.Email, email) {
			c := *o
			return &c, nil
		}
	}
	return nil, repositories.ErrOrganizerNotFound
}

type fakeUploader struct {
	mu      sync.Mutex
	objects map[string][]byte
	deleted []string
	err     error
}

func newFakeUploader() *fakeUploader {
	return &fakeUploader{objects: map[string][]byte{}}
}

func (u *fakeUploader) Upload(ctx context.Context, key, contentType string, r io.Reader) (*storage.UploadResult, error) {
	if u.err != nil {
		return nil, u.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.objects[key] = data
	return &storage.UploadResult{Key: key, Location: u.GetPublicURL(key)}, nil
}

func (u *fakeUploader) Delete(ctx context.Context, key string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.objects, key)
	u.deleted = append(u.deleted, key)
	return nil
}

func (u *fakeUploader) GetPublicURL(key string) string {
	return storage.PublicURL("https://cdn.test/submissions", key)
}

type recordingPublisher struct {
	mu      sync.Mutex
	changes []realtime.Change
}

func (p *recordingPublisher) Publish(ctx context.Context, c realtime.Change) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changes = append(p.changes, c)
	return nil
}

func (p *recordingPublisher) tables() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.changes))
	for _, c := range p.changes {
		out = append(out, c.Table+":"+string(c.Event))
	}
	return out
}

var errBoom = errors.New("boom")

func photo(t *testing.T, w, h int) io.Reader {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{G: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return &buf
}

// hugePNGHeader is the header of a 20000x20000 PNG without pixel data.
func hugePNGHeader() io.Reader {
	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	chunk := []byte("IHDR")
	chunk = binary.BigEndian.AppendUint32(chunk, 20000)
	chunk = binary.BigEndian.AppendUint32(chunk, 20000)
	chunk = append(chunk, 8, 0, 0, 0, 0)
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(chunk)-4))
	buf.Write(chunk)
	_ = binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return &buf
}
