package words

import (
	"math/rand/v2"
	"os"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
)

// fallbackWords keeps the game playable when no word file is configured or
// the configured one cannot be read.
var fallbackWords = []string{
	"cat", "dog", "house", "tree", "table", "chair", "flower",
	"book", "computer", "phone", "car", "bicycle", "guitar",
	"piano", "picture", "lamp", "window", "door", "wall", "floor",
	"bridge", "river", "island", "candle", "mirror", "ladder",
}

// Dictionary picks the shared round words. It is constructed once at
// startup and passed to the lifecycle by reference, so tests can substitute
// their own word source.
type Dictionary struct {
	words []string
}

// Load reads one word per line from path, keeping words of at least three
// characters. A missing or empty file falls back to the built-in list.
func Load(path string, log *zap.Logger) *Dictionary {
	if path == "" {
		return &Dictionary{words: fallbackWords}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		log.Warn("word file unavailable, using built-in list",
			zap.String("path", path), zap.Error(err))
		return &Dictionary{words: fallbackWords}
	}
	var list []string
	for _, line := range strings.Split(string(data), "\n") {
		word := strings.TrimSpace(line)
		if word != "" && utf8.RuneCountInString(word) >= 3 {
			list = append(list, word)
		}
	}
	if len(list) == 0 {
		log.Warn("word file contained no usable words, using built-in list",
			zap.String("path", path))
		return &Dictionary{words: fallbackWords}
	}
	log.Info("word list loaded", zap.String("path", path), zap.Int("words", len(list)))
	return &Dictionary{words: list}
}

// New builds a dictionary from an explicit word list. Intended for tests.
func New(list []string) *Dictionary {
	if len(list) == 0 {
		list = fallbackWords
	}
	return &Dictionary{words: list}
}

// PickRandomWord returns a uniformly drawn word; never empty.
func (d *Dictionary) PickRandomWord() string {
	return d.words[rand.IntN(len(d.words))]
}

// Decoys returns up to n random words different from exclude, used as the
// impostor's hints.
func (d *Dictionary) Decoys(exclude string, n int) []string {
	idx := rand.Perm(len(d.words))
	var out []string
	for _, i := range idx {
		if len(out) == n {
			break
		}
		if d.words[i] != exclude {
			out = append(out, d.words[i])
		}
	}
	return out
}

func (d *Dictionary) Len() int {
	return len(d.words)
}
