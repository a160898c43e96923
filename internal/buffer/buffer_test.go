package buffer

import (
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/radmon/devclient/internal/reading"
	"github.com/radmon/devclient/log2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testReading(seq string) reading.Reading {
	return reading.Reading{
		MeasuredAt: "2024-03-01T10:30:45.123Z",
		Value:      0.137,
		Unit:       reading.DefaultUnit,
		Metadata:   reading.Metadata{Seq: seq, Simulator: true},
	}
}

func testReadingExtra(seq string, extra map[string]string) reading.Reading {
	r := testReading(seq)
	r.Metadata.Extra = make(map[string]json.RawMessage, len(extra))
	for k, v := range extra {
		r.Metadata.Extra[k] = json.RawMessage(v)
	}
	return r
}

func TestLoad(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		setup  func(t testing.TB, path string)
		kind   loadKind
		expect []string
	}{
		{"missing", func(testing.TB, string) {}, loadMissing, nil},
		{"empty-array", func(t testing.TB, path string) {
			require.NoError(t, ioutil.WriteFile(path, []byte("[]"), 0644))
		}, loadOk, nil},
		{"null", func(t testing.TB, path string) {
			require.NoError(t, ioutil.WriteFile(path, []byte("null"), 0644))
		}, loadOk, nil},
		{"two", func(t testing.TB, path string) {
			content := `[{"measured_at":"2024-03-01T10:30:45.123Z","value":1,"unit":"u","metadata":{"seq":"a","simulator":true}},
{"measured_at":"2024-03-01T10:30:50.123Z","value":2,"unit":"u","metadata":{"seq":"b","simulator":true}}]`
			require.NoError(t, ioutil.WriteFile(path, []byte(content), 0644))
		}, loadOk, []string{"a", "b"}},
		{"wrong-typed-kept", func(t testing.TB, path string) {
			content := `[{"measured_at":"2024-03-01T10:30:45.123Z","value":1,"unit":"u","metadata":{"seq":"a","simulator":true}},
{"measured_at":"2024-03-01T10:30:50.123Z","value":2,"unit":"u","metadata":{"seq":7,"simulator":"no"}}]`
			require.NoError(t, ioutil.WriteFile(path, []byte(content), 0644))
		}, loadOk, []string{"a", ""}},
		{"garbage", func(t testing.TB, path string) {
			require.NoError(t, ioutil.WriteFile(path, []byte("{not json"), 0644))
		}, loadParseError, nil},
		{"truncated", func(t testing.TB, path string) {
			require.NoError(t, ioutil.WriteFile(path, []byte(`[{"measured_at":"2024-`), 0644))
		}, loadParseError, nil},
		{"object", func(t testing.TB, path string) {
			require.NoError(t, ioutil.WriteFile(path, []byte(`{"seq":"a"}`), 0644))
		}, loadParseError, nil},
		{"directory", func(t testing.TB, path string) {
			require.NoError(t, os.Mkdir(path, 0755))
		}, loadReadError, nil},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), "buffer.json")
			c.setup(t, path)
			f := New(path, log2.NewTest(t, log2.LDebug))

			result := f.load()
			assert.Equal(t, c.kind, result.kind, "kind=%s err=%v", result.kind, result.err)
			if c.kind == loadOk || c.kind == loadMissing {
				assert.NoError(t, result.err)
			} else {
				assert.Error(t, result.err)
			}

			items := f.Load()
			require.NotNil(t, items)
			seqs := make([]string, 0, len(items))
			for _, r := range items {
				seqs = append(seqs, r.Seq())
			}
			if c.expect == nil {
				assert.Empty(t, seqs)
			} else {
				assert.Equal(t, c.expect, seqs)
			}
		})
	}
}

func TestPersistRoundTrip(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		items []reading.Reading
	}{
		{"nil", nil},
		{"empty", []reading.Reading{}},
		{"one", []reading.Reading{testReading("a")}},
		{"order", []reading.Reading{testReading("c"), testReading("a"), testReading("b")}},
		{"extra-big-int", []reading.Reading{testReadingExtra("e", map[string]string{
			"counter":  "9007199254740993",
			"firmware": `"1.2"`,
		})}},
		{"extra-wrong-seq", []reading.Reading{testReadingExtra("", map[string]string{"seq": "7"})}},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), "sub", "buffer.json")
			f := New(path, log2.NewTest(t, log2.LDebug))

			require.NoError(t, f.Persist(c.items))
			first := f.Load()
			require.NoError(t, f.Persist(first))
			second := f.Load()
			assert.Equal(t, first, second)
			assert.Len(t, second, len(c.items))
			for i := range c.items {
				assert.Equal(t, c.items[i], second[i])
			}

			b, err := ioutil.ReadFile(path)
			require.NoError(t, err)
			if len(c.items) == 0 {
				assert.Equal(t, "[]", string(b))
			}
			for _, r := range c.items {
				for k, v := range r.Metadata.Extra {
					assert.Contains(t, string(b), `"`+k+`":`+string(v))
				}
			}
		})
	}
}

func TestPersistLeavesNoTemp(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "buffer.json")
	f := New(path, log2.NewTest(t, log2.LDebug))
	for i := 0; i < 3; i++ {
		require.NoError(t, f.Persist([]reading.Reading{testReading("a"), testReading("b")}))
	}
	entries, err := ioutil.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "buffer.json", entries[0].Name())
}

func TestPersistError(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, ioutil.WriteFile(blocker, []byte("x"), 0644))
	f := New(filepath.Join(blocker, "buffer.json"), log2.NewTest(t, log2.LDebug))
	assert.Error(t, f.Persist([]reading.Reading{testReading("a")}))
}

func TestQueue(t *testing.T) {
	t.Parallel()

	q := NewQueue([]reading.Reading{testReading("a"), testReading("b")})
	assert.Equal(t, 2, q.Len())
	assert.False(t, q.Dirty())

	q.Replace(q.Items())
	assert.False(t, q.Dirty(), "same contents must not mark dirty")

	items := q.Items()
	items[0].Metadata.Seq = "mutated"
	assert.Equal(t, "a", q.Items()[0].Seq(), "Items must return a copy")

	q.Replace([]reading.Reading{testReading("b")})
	assert.True(t, q.Dirty())
	q.MarkClean()
	q.Push(testReading("c"))
	assert.True(t, q.Dirty())
	got := q.Items()
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].Seq())
	assert.Equal(t, "c", got[1].Seq())
}
