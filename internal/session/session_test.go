package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyWithoutModelNameIsBase(t *testing.T) {
	// Photos sent before /model always land in the base bucket, even past
	// the usual two-image cap.
	s := Session{BaseImages: []string{"a", "b", "c"}}
	assert.Equal(t, RoleBase, Classify(s))
}

func TestClassifyFillsBaseBucketFirst(t *testing.T) {
	s := Session{ModelName: "Aria"}
	assert.Equal(t, RoleBase, Classify(s))

	s.BaseImages = []string{"a"}
	assert.Equal(t, RoleBase, Classify(s))

	s.BaseImages = []string{"a", "b"}
	assert.Equal(t, RoleReference, Classify(s))
}

func TestAddPhotoSequence(t *testing.T) {
	st := NewStore()
	st.SetModelName("u1", "Aria")

	role, n := st.AddPhoto("u1", "base1")
	assert.Equal(t, RoleBase, role)
	assert.Equal(t, 1, n)

	role, n = st.AddPhoto("u1", "base2")
	assert.Equal(t, RoleBase, role)
	assert.Equal(t, 2, n)

	role, n = st.AddPhoto("u1", "ref1")
	assert.Equal(t, RoleReference, role)
	assert.Equal(t, 1, n)

	sess := st.Get("u1")
	assert.Equal(t, []string{"base1", "base2"}, sess.BaseImages)
	assert.Equal(t, []string{"ref1"}, sess.RefImages)
}

func TestFirstTwoPhotosAreBaseWithoutModelName(t *testing.T) {
	st := NewStore()

	role, _ := st.AddPhoto("u1", "p1")
	assert.Equal(t, RoleBase, role)
	role, _ = st.AddPhoto("u1", "p2")
	assert.Equal(t, RoleBase, role)

	// Still no model name, so even the third photo stays base.
	role, _ = st.AddPhoto("u1", "p3")
	assert.Equal(t, RoleBase, role)
}

func TestAddReferences(t *testing.T) {
	st := NewStore()

	n := st.AddReferences("u1", []string{"r1", "r2"})
	assert.Equal(t, 2, n)
	n = st.AddReferences("u1", []string{"r3"})
	assert.Equal(t, 3, n)

	assert.Equal(t, []string{"r1", "r2", "r3"}, st.Get("u1").RefImages)
}

func TestClear(t *testing.T) {
	st := NewStore()
	st.SetModelName("u1", "Aria")
	st.AddPhoto("u1", "p1")

	st.Clear("u1")

	sess := st.Get("u1")
	assert.Empty(t, sess.ModelName)
	assert.Empty(t, sess.BaseImages)
	assert.Empty(t, sess.RefImages)
}

func TestGetReturnsSnapshot(t *testing.T) {
	st := NewStore()
	st.AddPhoto("u1", "p1")

	snap := st.Get("u1")
	snap.BaseImages[0] = "mutated"
	snap.BaseImages = append(snap.BaseImages, "extra")

	assert.Equal(t, []string{"p1"}, st.Get("u1").BaseImages)
}

func TestSessionsAreIndependent(t *testing.T) {
	st := NewStore()
	st.SetModelName("u1", "Aria")
	st.AddPhoto("u2", "p1")

	assert.Empty(t, st.Get("u2").ModelName)
	assert.Empty(t, st.Get("u1").BaseImages)
}
