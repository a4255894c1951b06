// Package user issues the anonymous identities that label sessions, task
// assignments and list presence. Handles are human-readable, not unique.
package user

import (
	"crypto/rand"
	"encoding/binary"
	mrand "math/rand/v2"
	"sync"

	"github.com/google/uuid"
)

// User identifies one session-scoped participant.
type User struct {
	ID     uuid.UUID `json:"id"`
	Handle string    `json:"handle"`
}

// New issues a user with a fresh id and a generated handle.
func New(gen *HandleGenerator) User {
	return User{ID: uuid.New(), Handle: gen.Generate()}
}

// HandleGenerator produces random three-word handles in the shape
// "brisk-copper-lemur". Safe for concurrent use.
type HandleGenerator struct {
	mu  sync.Mutex
	rng *mrand.Rand
}

// NewHandleGenerator seeds the generator from the OS entropy source.
func NewHandleGenerator() *HandleGenerator {
	var seed [16]byte
	_, _ = rand.Read(seed[:])
	return NewHandleGeneratorSeeded(
		binary.LittleEndian.Uint64(seed[:8]),
		binary.LittleEndian.Uint64(seed[8:]),
	)
}

// NewHandleGeneratorSeeded returns a deterministic generator for tests.
func NewHandleGeneratorSeeded(seed1, seed2 uint64) *HandleGenerator {
	return &HandleGenerator{rng: mrand.New(mrand.NewPCG(seed1, seed2))}
}

// Generate returns a fresh adjective-color-animal handle.
func (g *HandleGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return adjectives[g.rng.IntN(len(adjectives))] + "-" +
		colors[g.rng.IntN(len(colors))] + "-" +
		animals[g.rng.IntN(len(animals))]
}

var (
	adjectives = [...]string{
		"agile",
		"bold",
		"breezy",
		"brisk",
		"calm",
		"clever",
		"cosy",
		"curious",
		"dapper",
		"eager",
		"gentle",
		"glad",
		"humble",
		"jolly",
		"keen",
		"lively",
		"lucky",
		"mellow",
		"nimble",
		"patient",
		"plucky",
		"quiet",
		"rapid",
		"sly",
		"snappy",
		"steady",
		"sunny",
		"swift",
		"tidy",
		"witty",
	}

	colors = [...]string{
		"amber",
		"azure",
		"beige",
		"bronze",
		"cobalt",
		"copper",
		"coral",
		"crimson",
		"emerald",
		"golden",
		"indigo",
		"ivory",
		"jade",
		"lilac",
		"maroon",
		"ochre",
		"olive",
		"pearl",
		"russet",
		"saffron",
		"scarlet",
		"sepia",
		"silver",
		"teal",
		"umber",
		"violet",
	}

	animals = [...]string{
		"badger",
		"bison",
		"crane",
		"dingo",
		"falcon",
		"ferret",
		"finch",
		"gecko",
		"heron",
		"ibex",
		"jackal",
		"koala",
		"lemur",
		"lynx",
		"magpie",
		"marmot",
		"marten",
		"mole",
		"narwhal",
		"otter",
		"pangolin",
		"quokka",
		"raven",
		"seal",
		"shrew",
		"stoat",
		"tapir",
		"toucan",
		"vole",
		"wombat",
	}
)
