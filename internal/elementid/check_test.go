package elementid

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheck(t *testing.T) {
	ids := map[string]string{"3": "intro", "5": "footer"}
	cases := []struct {
		key, candidate string
		want           Verdict
	}{
		{"7", "hero", Unique},
		{"7", "intro", Conflicting},
		{"5", "footer", Unique},
		{"5", "intro", Conflicting},
		{"3", "header", Unique},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%s=%s", tc.key, tc.candidate), func(t *testing.T) {
			assert.Equal(t, tc.want, Check(ids, tc.key, tc.candidate))
		})
	}
	assert.Equal(t, map[string]string{"3": "intro", "5": "footer"}, ids, "ids must not be modified")
}

func TestCheckEmptyPage(t *testing.T) {
	assert.Equal(t, Unique, Check(nil, "1", "anything"))
	assert.Equal(t, Unique, Check(map[string]string{}, "1", ""))
}

func TestCheckExistingDuplicatesStayConflicting(t *testing.T) {
	ids := map[string]string{"1": "dup", "2": "dup"}
	assert.Equal(t, Conflicting, Check(ids, "3", "fresh"))
	assert.Equal(t, Unique, Check(ids, "2", "fresh"))
}

func TestResolve(t *testing.T) {
	ids := map[string]string{"3": "intro", "5": "footer"}

	got, n := Resolve(ids, "7", "intro")
	assert.Equal(t, "intro_1", got)
	assert.Equal(t, 1, n)

	got, n = Resolve(ids, "7", "hero")
	assert.Equal(t, "hero", got)
	assert.Equal(t, 0, n)

	got, n = Resolve(ids, "3", "intro")
	assert.Equal(t, "intro", got)
	assert.Equal(t, 0, n)
}

func TestResolvePicksSmallestFreeSuffix(t *testing.T) {
	ids := map[string]string{"1": "a", "2": "a_1", "3": "a_3"}
	got, n := Resolve(ids, "9", "a")
	assert.Equal(t, "a_2", got)
	assert.Equal(t, 2, n)
}

func TestResolveTerminatesWithDuplicatesElsewhere(t *testing.T) {
	ids := map[string]string{"1": "x", "2": "x", "3": "x_1"}
	got, n := Resolve(ids, "4", "x")
	assert.Equal(t, "x_2", got)
	assert.Equal(t, 2, n)
	assert.NotEqual(t, Conflicting, Check(map[string]string{"3": "x_1", "4": got}, "4", got))
}

func TestResolveResultIsUniqueAgainstOthers(t *testing.T) {
	ids := map[string]string{}
	for i := 0; i < 20; i++ {
		key := fmt.Sprint(i)
		got, _ := Resolve(ids, key, "card")
		assert.Equal(t, Unique, Check(ids, key, got))
		ids[key] = got
	}
	assert.Equal(t, "card", ids["0"])
	assert.Equal(t, "card_19", ids["19"])
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "intro", Normalize("  intro\t"))
	assert.Equal(t, "ABC1", Normalize("ＡＢＣ１"))
	assert.Equal(t, "", Normalize("   "))
	assert.True(t, hasSpace("a b"))
	assert.True(t, hasSpace("a\u00a0b"))
	assert.False(t, hasSpace("a-b"))
}

func TestVerdictString(t *testing.T) {
	assert.Equal(t, "unique", Unique.String())
	assert.Equal(t, "conflicting", Conflicting.String())
	assert.Equal(t, "undetermined", Undetermined.String())
}
