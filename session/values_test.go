package session_test

import (
	"slices"
	"testing"
	"time"

	"github.com/momentics/hioload-gateway/session"
)

func TestValuesTTL(t *testing.T) {
	s := session.NewValues()
	s.Set("a", 1, true)
	s.WithExpiration("a", int64(1*time.Millisecond))
	time.Sleep(5 * time.Millisecond)
	if _, ok := s.Get("a"); ok {
		t.Error("Expired key still present")
	}
	if len(s.Keys()) != 0 {
		t.Error("Expired key listed")
	}
}

func TestValuesCloneKeepsPropagatedOnly(t *testing.T) {
	s := session.NewValues()
	s.Set("user", "ada", true)
	s.Set("csrf", "x", false)
	c := s.Clone()
	if v, ok := c.Get("user"); !ok || v != "ada" || !c.IsPropagated("user") {
		t.Fatal("propagated key lost")
	}
	if _, ok := c.Get("csrf"); ok {
		t.Fatal("local key propagated")
	}
	c.Set("user", "bob", true)
	if v, _ := s.Get("user"); v != "ada" {
		t.Fatal("clone shares storage")
	}
	keys := s.Keys()
	slices.Sort(keys)
	if !slices.Equal(keys, []string{"csrf", "user"}) {
		t.Fatalf("keys = %v", keys)
	}
	s.Delete("csrf")
	if _, ok := s.Get("csrf"); ok {
		t.Fatal("deleted key present")
	}
}
