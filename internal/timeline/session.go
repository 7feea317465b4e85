package timeline

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/framecut/framecut-engine/internal/logging"
)

// ChangeKind tells subscribers how much of the derived state moved.
type ChangeKind int

const (
	// ChangeTrim means boundaries moved but no segment was added, removed or
	// reordered.
	ChangeTrim ChangeKind = iota
	// ChangeShape means the segment list changed shape; any cached segment
	// reference is stale.
	ChangeShape
	// ChangeGain means only a track gain changed.
	ChangeGain
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeTrim:
		return "trim"
	case ChangeShape:
		return "shape"
	case ChangeGain:
		return "gain"
	}
	return "unknown"
}

type Change struct {
	Kind    ChangeKind
	TrackID string
}

// Session is the single timeline aggregate: the clip snapshot, the ordered
// tracks and their derived segments. Every placement mutation goes through it,
// is written through to the store first, and re-derives segments before
// subscribers are notified.
type Session struct {
	id     string
	store  Store
	logger *slog.Logger

	mu       sync.RWMutex
	clips    map[string]SourceClip
	tracks   []Track
	segments map[string][]Segment
	total    float64

	subMu       sync.Mutex
	subscribers []func(Change)
}

// NewSession creates an empty session. A nil store keeps the session in memory.
func NewSession(store Store, logger *slog.Logger) *Session {
	return &Session{
		id:       uuid.NewString(),
		store:    store,
		logger:   logging.WithComponent(logging.OrDiscard(logger), "timeline"),
		clips:    make(map[string]SourceClip),
		segments: make(map[string][]Segment),
	}
}

// Load reads tracks from the store, installs the clip snapshot and makes sure
// a main track exists.
func (s *Session) Load(ctx context.Context, clips []SourceClip) error {
	var tracks []Track
	if s.store != nil {
		loaded, err := s.store.LoadTracks(ctx)
		if err != nil {
			return fmt.Errorf("failed to load tracks: %w", err)
		}
		tracks = loaded
	}

	s.mu.Lock()
	s.clips = indexClips(clips)
	s.tracks = tracks
	s.rederiveLocked()
	hasMain := s.mainIndexLocked() >= 0
	s.mu.Unlock()

	if !hasMain {
		if _, err := s.AddTrack(ctx, TrackMain, "V1"); err != nil {
			return err
		}
	}

	s.logger.Info("timeline loaded", "session_id", s.id, "tracks", len(tracks), "clips", len(clips))
	s.notify(Change{Kind: ChangeShape})
	return nil
}

func (s *Session) ID() string {
	return s.id
}

// Subscribe registers fn to run after every committed mutation.
func (s *Session) Subscribe(fn func(Change)) {
	s.subMu.Lock()
	s.subscribers = append(s.subscribers, fn)
	s.subMu.Unlock()
}

func (s *Session) notify(c Change) {
	s.subMu.Lock()
	subs := slices.Clone(s.subscribers)
	s.subMu.Unlock()
	for _, fn := range subs {
		fn(c)
	}
}

// SetClips replaces the clip snapshot. Placements whose clip disappeared stay
// in place and are excluded from segments until the clip returns.
func (s *Session) SetClips(clips []SourceClip) {
	s.mu.Lock()
	s.clips = indexClips(clips)
	s.rederiveLocked()
	s.mu.Unlock()
	s.notify(Change{Kind: ChangeShape})
}

// PutClip adds or replaces one clip in the snapshot.
func (s *Session) PutClip(clip SourceClip) {
	s.mu.Lock()
	s.clips[clip.ID] = clip
	s.rederiveLocked()
	s.mu.Unlock()
	s.notify(Change{Kind: ChangeShape})
}

// RemoveClip drops a clip from the snapshot without touching placements.
func (s *Session) RemoveClip(id string) {
	s.mu.Lock()
	delete(s.clips, id)
	s.rederiveLocked()
	s.mu.Unlock()
	s.notify(Change{Kind: ChangeShape})
}

func (s *Session) Clip(id string) (SourceClip, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clips[id]
	return c, ok
}

func (s *Session) Clips() map[string]SourceClip {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]SourceClip, len(s.clips))
	for k, v := range s.clips {
		out[k] = v
	}
	return out
}

func (s *Session) Tracks() []Track {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Track, len(s.tracks))
	for i, t := range s.tracks {
		out[i] = t.clone()
	}
	return out
}

func (s *Session) Track(id string) (Track, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.trackIndexLocked(id)
	if i < 0 {
		return Track{}, false
	}
	return s.tracks[i].clone(), true
}

func (s *Session) MainTrack() (Track, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.mainIndexLocked()
	if i < 0 {
		return Track{}, false
	}
	return s.tracks[i].clone(), true
}

// Segments returns the derived segments for trackID.
func (s *Session) Segments(trackID string) []Segment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Segment(nil), s.segments[trackID]...)
}

// MainSegments returns the primary single-lane track's segments.
func (s *Session) MainSegments() []Segment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.mainIndexLocked()
	if i < 0 {
		return nil
	}
	return append([]Segment(nil), s.segments[s.tracks[i].ID]...)
}

// SegmentsOf concatenates the segments of every track of the given kinds, in
// track order.
func (s *Session) SegmentsOf(kinds ...TrackKind) []Segment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Segment
	for _, t := range s.tracks {
		for _, k := range kinds {
			if t.Kind == k {
				out = append(out, s.segments[t.ID]...)
				break
			}
		}
	}
	return out
}

// TotalDuration is the max TimelineEnd over all tracks.
func (s *Session) TotalDuration() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.total
}

func (s *Session) Placement(id string) (Placement, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ti, pi := s.findPlacementLocked(id)
	if ti < 0 {
		return Placement{}, false
	}
	return s.tracks[ti].Placements[pi], true
}

// BrokenPlacements returns every placement whose source clip is missing.
func (s *Session) BrokenPlacements() []Placement {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Placement
	for _, t := range s.tracks {
		out = append(out, BrokenPlacements(t.Placements, s.clips)...)
	}
	return out
}

// TrackGains returns the explicit gain of every track that has one.
func (s *Session) TrackGains() map[string]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]float64)
	for _, t := range s.tracks {
		if t.Gain != nil {
			out[t.ID] = *t.Gain
		}
	}
	return out
}

// AddTrack appends a track. Only one main track may exist.
func (s *Session) AddTrack(ctx context.Context, kind TrackKind, name string) (Track, error) {
	if !kind.Valid() {
		return Track{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidTrack, kind)
	}

	s.mu.Lock()
	if kind == TrackMain && s.mainIndexLocked() >= 0 {
		s.mu.Unlock()
		return Track{}, fmt.Errorf("%w: a main track already exists", ErrInvalidTrack)
	}
	track := Track{ID: uuid.NewString(), Kind: kind, Name: name}
	if err := s.saveLocked(ctx, len(s.tracks), track); err != nil {
		s.mu.Unlock()
		return Track{}, err
	}
	s.tracks = append(s.tracks, track)
	s.rederiveLocked()
	s.mu.Unlock()

	s.logger.Info("track added", "track_id", track.ID, "kind", kind)
	s.notify(Change{Kind: ChangeShape, TrackID: track.ID})
	return track.clone(), nil
}

// RemoveTrack deletes a non-main track together with its placements.
func (s *Session) RemoveTrack(ctx context.Context, id string) error {
	s.mu.Lock()
	i := s.trackIndexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return ErrTrackNotFound
	}
	if s.tracks[i].Kind == TrackMain {
		s.mu.Unlock()
		return fmt.Errorf("%w: the main track cannot be removed", ErrInvalidTrack)
	}
	if s.store != nil {
		if err := s.store.DeleteTrack(ctx, id); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("failed to delete track: %w", err)
		}
	}
	s.tracks = append(s.tracks[:i:i], s.tracks[i+1:]...)
	s.rederiveLocked()
	s.mu.Unlock()

	s.logger.Info("track removed", "track_id", id)
	s.notify(Change{Kind: ChangeShape, TrackID: id})
	return nil
}

// SetTrackGain sets a per-track mix level in [0, 1].
func (s *Session) SetTrackGain(ctx context.Context, id string, gain float64) error {
	if gain < 0 || gain > 1 {
		return fmt.Errorf("%w: gain %.3f must be between 0 and 1", ErrInvalidTrack, gain)
	}
	err := s.mutateTrack(ctx, id, func(t *Track) error {
		t.Gain = &gain
		return nil
	})
	if err != nil {
		return err
	}
	s.notify(Change{Kind: ChangeGain, TrackID: id})
	return nil
}

// Insert places p on trackID at index; index < 0 appends. A new InstanceID is
// assigned when p has none.
func (s *Session) Insert(ctx context.Context, trackID string, index int, p Placement) (Placement, error) {
	clip, ok := s.Clip(p.SourceClipID)
	if !ok {
		return Placement{}, fmt.Errorf("%w: %s", ErrMissingSourceClip, p.SourceClipID)
	}
	if err := ValidateTrim(p.TrimIn, p.TrimOut, clip); err != nil {
		return Placement{}, err
	}
	if p.InstanceID == "" {
		p.InstanceID = uuid.NewString()
	} else if _, exists := s.Placement(p.InstanceID); exists {
		return Placement{}, fmt.Errorf("%w: %s", ErrDuplicatePlacement, p.InstanceID)
	}
	p.TrackID = trackID

	err := s.mutateTrack(ctx, trackID, func(t *Track) error {
		if index < 0 {
			index = len(t.Placements)
		}
		if index > len(t.Placements) {
			return fmt.Errorf("%w: %d (track has %d placements)", ErrInvalidIndex, index, len(t.Placements))
		}
		t.Placements = insertAt(t.Placements, index, p)
		return nil
	})
	if err != nil {
		return Placement{}, err
	}

	s.logger.Debug("placement inserted", "placement_id", p.InstanceID, "track_id", trackID, "index", index)
	s.notify(Change{Kind: ChangeShape, TrackID: trackID})
	return p, nil
}

// Delete removes a placement.
func (s *Session) Delete(ctx context.Context, placementID string) error {
	trackID, err := s.trackOf(placementID)
	if err != nil {
		return err
	}
	err = s.mutateTrack(ctx, trackID, func(t *Track) error {
		i := t.indexOf(placementID)
		if i < 0 {
			return ErrPlacementNotFound
		}
		t.Placements = append(t.Placements[:i:i], t.Placements[i+1:]...)
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Debug("placement deleted", "placement_id", placementID)
	s.notify(Change{Kind: ChangeShape, TrackID: trackID})
	return nil
}

// Move reorders a placement within its track.
func (s *Session) Move(ctx context.Context, placementID string, newIndex int) error {
	trackID, err := s.trackOf(placementID)
	if err != nil {
		return err
	}
	err = s.mutateTrack(ctx, trackID, func(t *Track) error {
		if newIndex < 0 || newIndex >= len(t.Placements) {
			return fmt.Errorf("%w: %d", ErrInvalidIndex, newIndex)
		}
		i := t.indexOf(placementID)
		if i < 0 {
			return ErrPlacementNotFound
		}
		p := t.Placements[i]
		rest := append(t.Placements[:i:i], t.Placements[i+1:]...)
		t.Placements = insertAt(rest, newIndex, p)
		return nil
	})
	if err != nil {
		return err
	}

	s.notify(Change{Kind: ChangeShape, TrackID: trackID})
	return nil
}

// SetTrim commits new trim boundaries. Invalid trims are rejected before the
// store or the in-memory placement is touched.
func (s *Session) SetTrim(ctx context.Context, placementID string, trimIn, trimOut float64) (Placement, error) {
	p, ok := s.Placement(placementID)
	if !ok {
		return Placement{}, ErrPlacementNotFound
	}
	clip, ok := s.Clip(p.SourceClipID)
	if !ok {
		return Placement{}, fmt.Errorf("%w: %s", ErrMissingSourceClip, p.SourceClipID)
	}
	if err := ValidateTrim(trimIn, trimOut, clip); err != nil {
		return Placement{}, err
	}

	err := s.mutateTrack(ctx, p.TrackID, func(t *Track) error {
		i := t.indexOf(placementID)
		if i < 0 {
			return ErrPlacementNotFound
		}
		t.Placements[i].TrimIn = trimIn
		t.Placements[i].TrimOut = trimOut
		p = t.Placements[i]
		return nil
	})
	if err != nil {
		return Placement{}, err
	}

	s.logger.Debug("trim committed", "placement_id", placementID, "trim_in", trimIn, "trim_out", trimOut)
	s.notify(Change{Kind: ChangeTrim, TrackID: p.TrackID})
	return p, nil
}

// Split replaces a placement with two placements that share its source clip,
// cut at splitPoint in source time. Both halves get new instance ids and must
// be at least one frame long.
func (s *Session) Split(ctx context.Context, placementID string, splitPoint float64) (Placement, Placement, error) {
	p, ok := s.Placement(placementID)
	if !ok {
		return Placement{}, Placement{}, ErrPlacementNotFound
	}
	clip, ok := s.Clip(p.SourceClipID)
	if !ok {
		return Placement{}, Placement{}, fmt.Errorf("%w: %s", ErrMissingSourceClip, p.SourceClipID)
	}
	minDur := clip.MinDuration() - epsilonFor(clip)
	if splitPoint-p.TrimIn < minDur || p.TrimOut-splitPoint < minDur {
		return Placement{}, Placement{}, fmt.Errorf("%w: %.3f not inside (%.3f, %.3f)", ErrInvalidSplit, splitPoint, p.TrimIn, p.TrimOut)
	}

	left := Placement{
		InstanceID:   uuid.NewString(),
		SourceClipID: p.SourceClipID,
		TrimIn:       p.TrimIn,
		TrimOut:      splitPoint,
		TrackID:      p.TrackID,
	}
	right := Placement{
		InstanceID:   uuid.NewString(),
		SourceClipID: p.SourceClipID,
		TrimIn:       splitPoint,
		TrimOut:      p.TrimOut,
		TrackID:      p.TrackID,
	}

	err := s.mutateTrack(ctx, p.TrackID, func(t *Track) error {
		i := t.indexOf(placementID)
		if i < 0 {
			return ErrPlacementNotFound
		}
		rest := append(t.Placements[:i:i], t.Placements[i+1:]...)
		rest = insertAt(rest, i, right)
		t.Placements = insertAt(rest, i, left)
		return nil
	})
	if err != nil {
		return Placement{}, Placement{}, err
	}

	s.logger.Debug("placement split", "placement_id", placementID, "split_point", splitPoint,
		"left", left.InstanceID, "right", right.InstanceID)
	s.notify(Change{Kind: ChangeShape, TrackID: p.TrackID})
	return left, right, nil
}

// SplitAt splits whichever placement on trackID covers timeline time t.
func (s *Session) SplitAt(ctx context.Context, trackID string, t float64) (Placement, Placement, error) {
	segs := s.Segments(trackID)
	i := IndexAt(segs, t)
	if i < 0 {
		return Placement{}, Placement{}, fmt.Errorf("%w: no segment at %.3f", ErrInvalidSplit, t)
	}
	return s.Split(ctx, segs[i].PlacementID, segs[i].SourceTime(t))
}

// mutateTrack applies fn to a copy of the track, writes the copy through to
// the store and only then swaps it in and re-derives.
func (s *Session) mutateTrack(ctx context.Context, trackID string, fn func(t *Track) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.trackIndexLocked(trackID)
	if i < 0 {
		return ErrTrackNotFound
	}
	next := s.tracks[i].clone()
	if err := fn(&next); err != nil {
		return err
	}
	if err := s.saveLocked(ctx, i, next); err != nil {
		return err
	}
	s.tracks[i] = next
	s.rederiveLocked()
	return nil
}

func (s *Session) saveLocked(ctx context.Context, position int, t Track) error {
	if s.store == nil {
		return nil
	}
	if err := s.store.SaveTrack(ctx, position, t); err != nil {
		return fmt.Errorf("failed to save track: %w", err)
	}
	return nil
}

func (s *Session) rederiveLocked() {
	segments := make(map[string][]Segment, len(s.tracks))
	lists := make([][]Segment, 0, len(s.tracks))
	for i := range s.tracks {
		t := &s.tracks[i]
		for j := range t.Placements {
			t.Placements[j].TrackID = t.ID
		}
		segs := DeriveSegments(t.Placements, s.clips)
		segments[t.ID] = segs
		lists = append(lists, segs)
	}
	s.segments = segments
	s.total = TotalDuration(lists...)
}

func (s *Session) trackOf(placementID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ti, _ := s.findPlacementLocked(placementID)
	if ti < 0 {
		return "", ErrPlacementNotFound
	}
	return s.tracks[ti].ID, nil
}

func (s *Session) findPlacementLocked(id string) (int, int) {
	for ti, t := range s.tracks {
		if pi := t.indexOf(id); pi >= 0 {
			return ti, pi
		}
	}
	return -1, -1
}

func (s *Session) trackIndexLocked(id string) int {
	for i, t := range s.tracks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func (s *Session) mainIndexLocked() int {
	for i, t := range s.tracks {
		if t.Kind == TrackMain {
			return i
		}
	}
	return -1
}

func indexClips(clips []SourceClip) map[string]SourceClip {
	m := make(map[string]SourceClip, len(clips))
	for _, c := range clips {
		m[c.ID] = c
	}
	return m
}

func insertAt(list []Placement, i int, p Placement) []Placement {
	out := make([]Placement, 0, len(list)+1)
	out = append(out, list[:i]...)
	out = append(out, p)
	return append(out, list[i:]...)
}
