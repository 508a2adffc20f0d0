package session

import "sync"

// Role is the bucket a photo lands in.
type Role int

const (
	RoleBase Role = iota
	RoleReference
)

func (r Role) String() string {
	if r == RoleBase {
		return "base"
	}
	return "reference"
}

// Session is one user's in-progress generation request. It lives only in
// memory; a restart discards it by design, since it is work in progress
// rather than committed state.
type Session struct {
	ModelName  string
	BaseImages []string
	RefImages  []string
}

// Classify decides which bucket the next photo belongs to, given a session
// snapshot. Until the model name is set, or while fewer than two base
// images are present, photos are treated as base images. A user who sends
// many photos before /model therefore accumulates them all as base images;
// that is the intended heuristic, not a bug.
func Classify(s Session) Role {
	if s.ModelName == "" || len(s.BaseImages) < 2 {
		return RoleBase
	}
	return RoleReference
}

// Store holds sessions keyed by user id. Sessions are created lazily and
// cleared wholesale after a generation run.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

// Get returns a snapshot of the user's session, or a zero session if none
// exists yet. Mutating the snapshot does not affect the store.
func (st *Store) Get(userID string) Session {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[userID]
	if !ok {
		return Session{}
	}
	out := Session{ModelName: s.ModelName}
	out.BaseImages = append(out.BaseImages, s.BaseImages...)
	out.RefImages = append(out.RefImages, s.RefImages...)
	return out
}

// SetModelName records the model name, creating the session if needed.
func (st *Store) SetModelName(userID, name string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.session(userID).ModelName = name
}

// AddPhoto classifies the image against the current session state and
// appends it to the chosen bucket, returning the role and the new size of
// that bucket.
func (st *Store) AddPhoto(userID, imageURL string) (Role, int) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s := st.session(userID)
	role := Classify(Session{ModelName: s.ModelName, BaseImages: s.BaseImages})
	if role == RoleBase {
		s.BaseImages = append(s.BaseImages, imageURL)
		return role, len(s.BaseImages)
	}
	s.RefImages = append(s.RefImages, imageURL)
	return role, len(s.RefImages)
}

// AddReferences appends fetched image URLs to the reference bucket and
// returns its new size. Source-fetched images are always references; the
// classifier only applies to direct photo uploads.
func (st *Store) AddReferences(userID string, urls []string) int {
	st.mu.Lock()
	defer st.mu.Unlock()
	s := st.session(userID)
	s.RefImages = append(s.RefImages, urls...)
	return len(s.RefImages)
}

// Clear drops the user's session entirely.
func (st *Store) Clear(userID string) {
	st.mu.Lock()
	delete(st.sessions, userID)
	st.mu.Unlock()
}

func (st *Store) session(userID string) *Session {
	s, ok := st.sessions[userID]
	if !ok {
		s = &Session{}
		st.sessions[userID] = s
	}
	return s
}
