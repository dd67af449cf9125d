package envutil

import (
	"testing"
	"time"
)

func TestIntFallsBackOnGarbage(t *testing.T) {
	t.Setenv("PF_TEST_INT", "abc")
	if got := Int("PF_TEST_INT", 7); got != 7 {
		t.Fatalf("Int: want=7 got=%d", got)
	}
	t.Setenv("PF_TEST_INT", " 12 ")
	if got := Int("PF_TEST_INT", 7); got != 12 {
		t.Fatalf("Int: want=12 got=%d", got)
	}
}

func TestBool(t *testing.T) {
	t.Setenv("PF_TEST_BOOL", "off")
	if Bool("PF_TEST_BOOL", true) {
		t.Fatalf("Bool: want=false got=true")
	}
	t.Setenv("PF_TEST_BOOL", "maybe")
	if !Bool("PF_TEST_BOOL", true) {
		t.Fatalf("Bool: want default true")
	}
}

func TestSeconds(t *testing.T) {
	t.Setenv("PF_TEST_SECS", "0")
	if got := Seconds("PF_TEST_SECS", time.Minute); got != time.Minute {
		t.Fatalf("Seconds: want=%v got=%v", time.Minute, got)
	}
	t.Setenv("PF_TEST_SECS", "90")
	if got := Seconds("PF_TEST_SECS", time.Minute); got != 90*time.Second {
		t.Fatalf("Seconds: want=%v got=%v", 90*time.Second, got)
	}
}
