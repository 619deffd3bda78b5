package enginetest

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"llamad/internal/engine"
)

func TestPieces(t *testing.T) {
	require.Equal(t, []string{"hello ", "big ", "world"}, Pieces("hello big world"))
	require.Equal(t, []string{"a ", " "}, Pieces("a  "))
	require.Empty(t, Pieces(""))
	require.Equal(t, "x  y z", strings.Join(Pieces("x  y z"), ""))
}

func TestFakeIdentityVocabulary(t *testing.T) {
	f := New()
	f.BackendInit()
	m := f.LoadModel("/m")
	buf := make([]engine.TokenID, 8)
	n := f.Tokenize(m, "one two one", buf, false)
	require.Equal(t, 3, n)
	require.Equal(t, buf[0], f.id("one "))
	var out strings.Builder
	for _, tok := range buf[:n] {
		text, ok := f.TokenToText(m, tok)
		require.True(t, ok)
		out.WriteString(text)
	}
	require.Equal(t, "one two one", out.String())
	require.Empty(t, f.Violations())
}

func TestFakeTokenizeBufferTooSmall(t *testing.T) {
	f := New()
	f.BackendInit()
	m := f.LoadModel("/m")
	n := f.Tokenize(m, "a b c", make([]engine.TokenID, 2), true)
	require.Equal(t, -4, n)
}

func TestFakeDetectsMisuse(t *testing.T) {
	f := New()
	f.BackendInit()
	m := f.LoadModel("/m")
	c := f.NewContext(m, 16, 1)
	f.FreeModel(m)
	f.Eval(c, []engine.TokenID{1}, 3)
	v := f.Violations()
	require.Len(t, v, 3, "%v", v)
	require.Contains(t, v[0], "while context")
	require.Contains(t, v[1], "was freed")
	require.Contains(t, v[2], "position 3")
}

func TestFakeDetectsOverlap(t *testing.T) {
	f := New("a ")
	f.Delay = 5 * time.Millisecond
	f.BackendInit()
	m := f.LoadModel("/m")
	c := f.NewContext(m, 16, 1)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.Sample(c)
		}()
	}
	wg.Wait()
	require.NotEmpty(t, f.Violations())
	require.Contains(t, f.Violations()[0], "overlapping")
}

func TestFakeScriptedFailures(t *testing.T) {
	f := New("a ", "b ")
	f.EvalFailAt = 2
	f.EvalFailCode = -7
	f.InvalidTokenAt = 2
	f.BackendInit()
	m := f.LoadModel("/m")
	c := f.NewContext(m, 16, 1)
	f.ClearKVCache(c)

	require.Zero(t, f.Eval(c, []engine.TokenID{BOS}, 0))
	require.Equal(t, f.id("a "), f.Sample(c))
	require.Equal(t, -7, f.Eval(c, []engine.TokenID{3}, 1))
	require.Equal(t, engine.TokenID(-1), f.Sample(c))
	require.Equal(t, EOS, f.Sample(c))

	f.ClearKVCache(c)
	require.Zero(t, f.Eval(c, []engine.TokenID{BOS}, 0))
	require.Equal(t, f.id("a "), f.Sample(c))
	require.Equal(t, 2, f.Count(OpClearKVCache))
}
