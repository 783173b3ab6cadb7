package parser

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"pgregory.net/rapid"

	"github.com/omniql-engine/x8ql/engine/ast"
)

func TestCacheReturnsIndependentCopies(t *testing.T) {
	c := NewCache()

	first, err := c.ParseWhere(`tags in ("a", "b") and n = 1`)
	require.NoError(t, err)
	second, err := c.ParseWhere(`tags in ("a", "b") and n = 1`)
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.NotSame(t, first, second)

	first.(*ast.And).Left.(*ast.Comparison).Left.(*ast.Field).Path = "mutated"

	third, err := c.ParseWhere(`tags in ("a", "b") and n = 1`)
	require.NoError(t, err)
	require.Equal(t, second, third)

	stats := c.Stats()
	require.Equal(t, 1, stats.Entries)
	require.Equal(t, int64(1), stats.Misses)
	require.Equal(t, int64(2), stats.Hits)
}

func TestCacheKeysByKind(t *testing.T) {
	c := NewCache()

	asWhere, err := c.Parse("a", KindWhere)
	require.NoError(t, err)
	asSelect, err := c.Parse("a", KindSelect)
	require.NoError(t, err)

	require.IsType(t, &ast.Field{}, asWhere)
	require.IsType(t, &ast.Select{}, asSelect)
	require.Equal(t, 2, c.Stats().Entries)
}

func TestCacheCachesErrors(t *testing.T) {
	c := NewCache()
	_, err1 := c.Parse("a = ", KindWhere)
	_, err2 := c.Parse("a = ", KindWhere)
	require.Error(t, err1)
	require.Equal(t, err1, err2)
	require.Equal(t, int64(1), c.Stats().Misses)
}

func TestCacheConcurrentReaders(t *testing.T) {
	defer goleak.VerifyNone(t)

	c := NewCache()
	texts := []string{"a = 1", "b in (1, 2)", "not c", "d between 1 and 2", "exists()"}

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				text := texts[(g+i)%len(texts)]
				node, err := c.ParseWhere(text)
				if err != nil {
					errs <- err
					return
				}
				// Callers own their copy.
				if cmp, ok := node.(*ast.Comparison); ok {
					cmp.Op = "mutated"
				}
			}
		}(g)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	require.Equal(t, len(texts), c.Stats().Entries)
	node, err := c.ParseWhere("a = 1")
	require.NoError(t, err)
	require.Equal(t, "=", node.(*ast.Comparison).Op)
}

func TestDefaultCacheHelpers(t *testing.T) {
	op, err := ParseStatement("count where a > 1")
	require.NoError(t, err)
	require.Equal(t, "count", op.Name)

	upd, err := ParseUpdate("a=put(1)")
	require.NoError(t, err)
	require.Len(t, upd.Operations, 1)

	order, err := ParseOrderBy("a desc")
	require.NoError(t, err)
	require.Equal(t, ast.Desc, order.Terms[0].Direction)

	coll, err := ParseCollection(`"my items"`)
	require.NoError(t, err)
	require.Equal(t, "my items", coll.Name)
}

// genExpr draws a small condition together with its QL text.
func genExpr(t *rapid.T, depth int) string {
	fields := []string{"a", "b.c", "tags[0]", "items[-]", "$id"}
	if depth <= 0 || rapid.IntRange(0, 2).Draw(t, "leaf") == 0 {
		f := rapid.SampledFrom(fields).Draw(t, "field")
		switch rapid.IntRange(0, 4).Draw(t, "form") {
		case 0:
			op := rapid.SampledFrom([]string{"=", "!=", "<", "<=", ">", ">="}).Draw(t, "op")
			return fmt.Sprintf("%s %s %d", f, op, rapid.Int64Range(-100, 100).Draw(t, "n"))
		case 1:
			return fmt.Sprintf("%s between %d and %d", f, rapid.IntRange(-5, 0).Draw(t, "lo"), rapid.IntRange(1, 5).Draw(t, "hi"))
		case 2:
			words := rapid.SliceOfN(rapid.StringMatching(`[a-z]{1,4}`), 1, 3).Draw(t, "words")
			quoted := make([]string, len(words))
			for i, w := range words {
				quoted[i] = fmt.Sprintf("%q", w)
			}
			in := rapid.SampledFrom([]string{"in", "not in"}).Draw(t, "in")
			return fmt.Sprintf("%s %s (%s)", f, in, strings.Join(quoted, ", "))
		case 3:
			return fmt.Sprintf("is_defined(%s)", f)
		default:
			return fmt.Sprintf("%s like %q", f, rapid.StringMatching(`[a-z]{1,3}`).Draw(t, "pattern"))
		}
	}
	switch rapid.IntRange(0, 2).Draw(t, "combinator") {
	case 0:
		return fmt.Sprintf("(%s and %s)", genExpr(t, depth-1), genExpr(t, depth-1))
	case 1:
		return fmt.Sprintf("(%s or %s)", genExpr(t, depth-1), genExpr(t, depth-1))
	default:
		return fmt.Sprintf("not (%s)", genExpr(t, depth-1))
	}
}

func TestRenderedExpressionsReparse(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		text := genExpr(t, 3)
		c := NewCache()

		first, err := c.ParseWhere(text)
		require.NoError(t, err, text)

		again, err := c.ParseWhere(first.String())
		require.NoError(t, err, first.String())
		require.Equal(t, first, again, "text %q rendered as %q", text, first.String())
	})
}

func TestRepeatedParsesAreEqualAndUnaliased(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		text := genExpr(t, 2)
		c := NewCache()

		a, err := c.ParseWhere(text)
		require.NoError(t, err)
		b, err := c.ParseWhere(text)
		require.NoError(t, err)
		require.Equal(t, a, b)
		require.NotSame(t, a, b)
	})
}
