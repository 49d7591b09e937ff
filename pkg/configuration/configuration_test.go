package configuration

import "testing"

func TestSatisfiesVersionRange(t *testing.T) {
	qt := NewResource("com.nokia.sw.qt")
	gui := NewResource("com.nokia.sw.qt.gui")

	provided := Comma(
		Comma(Exists(qt), VersionEq(qt, "4.7")),
		Exists(gui))

	required := And(
		And(VersionGe(qt, "4.6.5"), VersionLt(qt, "4.8")),
		Exists(gui))
	if !provided.Satisfies(required) {
		t.Fatalf("provided Qt 4.7 should satisfy Qt in [4.6.5, 4.8)")
	}

	tooNew := And(
		And(VersionGe(qt, "4.8"), VersionLt(qt, "5.0")),
		Exists(gui))
	if provided.Satisfies(tooNew) {
		t.Fatalf("provided Qt 4.7 must not satisfy Qt >= 4.8")
	}
}

func TestSatisfiesNotAndOr(t *testing.T) {
	meego := NewResource("com.nokia.sw.meego")
	symbian := NewResource("com.nokia.sw.symbian")
	joystick := NewResource("com.nokia.hw.keyboard.joystick")
	qt := NewResource("test.or.qt")

	provided := Comma(
		Comma(Exists(meego), VersionEq(qt, "4.7")),
		Exists(joystick))

	if !provided.Satisfies(Not(Exists(symbian))) {
		t.Fatalf("absent resource should satisfy its negation")
	}
	if provided.Satisfies(Not(Exists(meego))) {
		t.Fatalf("present resource must not satisfy its negation")
	}
	if !provided.Satisfies(Or(Not(Exists(joystick)), VersionGe(qt, "4.6.8"))) {
		t.Fatalf("Or with satisfied right branch should hold")
	}
	if !provided.Satisfies(Or(Not(Exists(symbian)), VersionGe(qt, "9.9"))) {
		t.Fatalf("Or with satisfied left branch should hold")
	}
}

func TestSatisfiesExistsWithoutVersionIsFalse(t *testing.T) {
	qml := NewResource("com.nokia.sw.qt.qml")

	// The resource is listed but no exact version is declared, so no
	// version relation over it can hold.
	provided := Exists(qml)
	if provided.Satisfies(VersionGe(qml, "1.0")) {
		t.Fatalf("version relation must not hold when no version is declared")
	}
}

func TestSatisfiesPanicsOnRelationalProvidedSide(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for relational provided side")
		}
	}()
	res := NewResource("test.bad.provided")
	VersionGe(res, "1.0").Satisfies(Exists(res))
}

func TestStructuralEquality(t *testing.T) {
	res := NewResource("test.equality")
	other := NewResource("test.equality.other")

	a := And(Exists(res), VersionGe(res, "1.2"))
	b := And(Exists(res), VersionGe(res, "1.2"))
	if !a.Equal(b) {
		t.Fatalf("structurally equal expressions should compare equal")
	}
	if a.Equal(And(Exists(res), VersionGe(res, "1.3"))) {
		t.Fatalf("differing versions must not compare equal")
	}
	if a.Equal(And(Exists(other), VersionGe(res, "1.2"))) {
		t.Fatalf("differing resources must not compare equal")
	}

	copied := a
	if !copied.Equal(a) {
		t.Fatalf("copies share the backing tree and must compare equal")
	}
}

func TestDefaultVersionCompare(t *testing.T) {
	cases := []struct {
		v1, v2 string
		sign   int
	}{
		{"1.2.3", "1.2.10", -1},
		{"1.2.10", "1.2.3", 1},
		{"4.7", "4.7", 0},
		{"4.7", "4.7.0", -1},
		{"10", "9", 1},
		{"0.1", "0.2", -1},
	}
	for _, c := range cases {
		got := DefaultVersionCompare(NewVersion(c.v1), NewVersion(c.v2))
		switch {
		case c.sign < 0 && got >= 0:
			t.Fatalf("compare(%q, %q) = %d, want negative", c.v1, c.v2, got)
		case c.sign > 0 && got <= 0:
			t.Fatalf("compare(%q, %q) = %d, want positive", c.v1, c.v2, got)
		case c.sign == 0 && got != 0:
			t.Fatalf("compare(%q, %q) = %d, want 0", c.v1, c.v2, got)
		}
	}
}

func TestDefaultVersionComparePanicsOnMalformedInput(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for malformed version")
		}
	}()
	DefaultVersionCompare(NewVersion("1.2-beta"), NewVersion("1.2"))
}

func TestRegisteredCompareFuncWinsOverDefault(t *testing.T) {
	res := NewResource("test.custom.compare")
	RegisterVersionCompareFunc(res, func(v1, v2 Version) int {
		// Lexicographic on purpose, to observe the override.
		switch {
		case v1.Spec() < v2.Spec():
			return -1
		case v1.Spec() > v2.Spec():
			return 1
		}
		return 0
	})

	// Lexicographically "1.2.3" > "1.2.10", the opposite of numeric order.
	if CompareVersions(res, NewVersion("1.2.3"), NewVersion("1.2.10")) <= 0 {
		t.Fatalf("registered comparator should have been used")
	}

	fallback := NewResource("test.default.compare")
	if CompareVersions(fallback, NewVersion("1.2.3"), NewVersion("1.2.10")) >= 0 {
		t.Fatalf("default comparator must order 1.2.3 before 1.2.10")
	}
}

func TestReRegisteringCompareFuncPanics(t *testing.T) {
	res := NewResource("test.reregister.compare")
	RegisterVersionCompareFunc(res, func(v1, v2 Version) int { return 0 })

	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on re-registration")
		}
	}()
	RegisterVersionCompareFunc(res, func(v1, v2 Version) int { return 0 })
}
