package embedding

import (
	"context"
	"math"
	"testing"
)

func TestHashEmbedderDeterministic(t *testing.T) {
	e := NewHashEmbedder(768)
	ctx := context.Background()

	a, err := e.Embed(ctx, "battery chemistry")
	if err != nil {
		t.Fatal(err)
	}
	b, err := e.Embed(ctx, "battery chemistry")
	if err != nil {
		t.Fatal(err)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("embedding not deterministic at %d", i)
		}
	}

	c, _ := e.Embed(ctx, "something else entirely")
	same := true
	for i := range a {
		if a[i] != c[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("different texts produced identical embeddings")
	}
}

func TestHashEmbedderUnitNorm(t *testing.T) {
	e := NewHashEmbedder(768)
	v, err := e.Embed(context.Background(), "some text")
	if err != nil {
		t.Fatal(err)
	}
	if len(v) != 768 {
		t.Fatalf("len = %d", len(v))
	}
	var sum float64
	for _, x := range v {
		sum += float64(x * x)
	}
	if math.Abs(sum-1.0) > 1e-4 {
		t.Errorf("norm^2 = %v, want 1", sum)
	}
}

func TestHashEmbedderBatch(t *testing.T) {
	e := NewHashEmbedder(16)
	out, err := e.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 3 {
		t.Fatalf("batch len = %d", len(out))
	}
	if e.Dimensions() != 16 {
		t.Errorf("Dimensions = %d", e.Dimensions())
	}
}

func TestCacheLRU(t *testing.T) {
	c := NewCache(2)
	c.Set("a", []float32{1})
	c.Set("b", []float32{2})

	if _, ok := c.Get("a"); !ok {
		t.Fatal("a should be cached")
	}
	// a is now most recent; inserting c evicts b.
	c.Set("c", []float32{3})
	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("a should still be cached")
	}
	if c.Len() != 2 {
		t.Errorf("Len = %d", c.Len())
	}
}

func TestCacheOverwrite(t *testing.T) {
	c := NewCache(2)
	c.Set("k", []float32{1})
	c.Set("k", []float32{9})
	v, ok := c.Get("k")
	if !ok || v[0] != 9 {
		t.Errorf("Get = %v, %v", v, ok)
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d", c.Len())
	}
}

func TestWordTokenizer(t *testing.T) {
	tok := &WordTokenizer{}
	ids, mask, types := tok.Tokenize("hello world", 8)
	if len(ids) != 8 || len(mask) != 8 || len(types) != 8 {
		t.Fatalf("lengths = %d %d %d", len(ids), len(mask), len(types))
	}
	if ids[0] != 101 {
		t.Errorf("first token = %d, want [CLS]", ids[0])
	}
	if mask[0] != 1 || mask[1] != 1 || mask[2] != 1 {
		t.Errorf("attention mask = %v", mask)
	}
	// Two words + CLS + SEP = 4 attended positions.
	attended := 0
	for _, m := range mask {
		attended += int(m)
	}
	if attended != 4 {
		t.Errorf("attended = %d, want 4", attended)
	}

	// Same word maps to the same ID; case-insensitive.
	ids2, _, _ := tok.Tokenize("Hello world", 8)
	if ids[1] != ids2[1] {
		t.Error("tokenizer not case-insensitive")
	}
}

func TestWordTokenizerTruncation(t *testing.T) {
	tok := &WordTokenizer{}
	ids, _, _ := tok.Tokenize("a b c d e f g h i j", 4)
	if len(ids) != 4 {
		t.Fatalf("len = %d", len(ids))
	}
}
