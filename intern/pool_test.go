package intern

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInternDedup(t *testing.T) {
	pool := NewPool()
	a := pool.Intern("TCP")
	b := pool.Intern(strings.Clone("TCP"))
	assert.Equal(t, a, b)
	assert.Equal(t, 1, pool.Unique())
	assert.Equal(t, uint64(1), pool.Hits())
	assert.Equal(t, uint64(3), pool.Bytes())
}

func TestInternEmpty(t *testing.T) {
	pool := NewPool()
	assert.Equal(t, "", pool.Intern(""))
	assert.Equal(t, 0, pool.Unique())
}

func TestInternReset(t *testing.T) {
	pool := NewPool()
	pool.Intern("a")
	pool.Intern("b")
	pool.Intern("a")
	assert.Equal(t, 2, pool.Unique())
	pool.Reset()
	assert.Equal(t, 0, pool.Unique())
	assert.Equal(t, uint64(0), pool.Hits())
	assert.Equal(t, uint64(0), pool.Bytes())
}

func TestInternManyDistinct(t *testing.T) {
	pool := NewPool()
	values := []string{"10.0.0.1", "10.0.0.2", "UDP", "DNS", "query A example.com"}
	for _, v := range values {
		assert.Equal(t, v, pool.Intern(v))
	}
	assert.Equal(t, len(values), pool.Unique())
	assert.Equal(t, uint64(0), pool.Hits())
}
