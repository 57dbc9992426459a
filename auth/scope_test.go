package auth

import "testing"

func TestParseScopesAcceptsSpaceAndCommaSeparation(t *testing.T) {
	scopes := ParseScopes("repository:library/app:pull,push repository:library/other:delete")
	if len(scopes) != 2 {
		t.Fatalf("expected 2 scopes, got %d", len(scopes))
	}
	if scopes[0].Type != "repository" || scopes[0].Name != "library/app" {
		t.Fatalf("unexpected first scope: %+v", scopes[0])
	}
	if !scopes[0].Allows(ActionPull) || !scopes[0].Allows(ActionPush) {
		t.Fatalf("expected pull and push, got %+v", scopes[0].Actions)
	}
	if scopes[0].Allows(ActionDelete) {
		t.Fatalf("did not request delete, should not be allowed")
	}
	if !scopes[1].Allows(ActionDelete) {
		t.Fatalf("expected delete on second scope, got %+v", scopes[1].Actions)
	}
}

func TestParseScopesDropsUnknownActionsAndMalformedFields(t *testing.T) {
	scopes := ParseScopes("repository:library/app:pull,frobnicate justtwoparts:x nope")
	if len(scopes) != 1 {
		t.Fatalf("expected malformed fields to be dropped, got %d scopes", len(scopes))
	}
	if len(scopes[0].Actions) != 1 || scopes[0].Actions[0] != ActionPull {
		t.Fatalf("expected only pull to survive, got %+v", scopes[0].Actions)
	}
}

func TestParseScopesDropsScopeWithNoRecognizedActions(t *testing.T) {
	scopes := ParseScopes("repository:library/app:frobnicate")
	if len(scopes) != 0 {
		t.Fatalf("expected scope with zero valid actions to be dropped, got %+v", scopes)
	}
}

func TestFormatScopesRoundTripsAndSorts(t *testing.T) {
	scopes := []Scope{
		{Type: "repository", Name: "library/z", Actions: []Action{ActionPull}},
		{Type: "repository", Name: "library/a", Actions: []Action{ActionPush}},
	}
	got := FormatScopes(scopes)
	want := "repository:library/a:push repository:library/z:pull"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestIntersectActions(t *testing.T) {
	got := intersectActions(
		[]Action{ActionPull, ActionPush, ActionDelete},
		[]Action{ActionPull, ActionDelete},
	)
	if len(got) != 2 || got[0] != ActionPull || got[1] != ActionDelete {
		t.Fatalf("unexpected intersection: %+v", got)
	}
}

func TestIntersectActionsEmptyWhenNoOverlap(t *testing.T) {
	got := intersectActions([]Action{ActionPush}, []Action{ActionPull})
	if len(got) != 0 {
		t.Fatalf("expected empty intersection, got %+v", got)
	}
}
