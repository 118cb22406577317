// Package main implements datagen, which writes a random input file for
// the coordinator.
//
// Usage:
//
//	datagen <filename> <count>
//
// The file holds count random signed 32-bit integers in the coordinator's
// input format: a little-endian int32 count followed by the values.
// DATAGEN_SEED fixes the generator seed; by default it is time based.
package main

import (
	"errors"
	"fmt"
	"log"
	"math/rand"
	"os"
	"strconv"
	"time"

	"github.com/dreamware/torsort/internal/storage"
)

const usage = "usage: datagen <filename> <count>"

// logFatal is a variable to allow mocking log.Fatal in tests.
var logFatal = log.Fatalf

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, usage)
		logFatal("datagen: %v", err)
	}
}

func run(args []string) error {
	if len(args) != 2 {
		return errors.New("expected a filename and a count")
	}
	count, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("count: %w", err)
	}
	if count < 0 {
		return fmt.Errorf("count must not be negative, got %d", count)
	}

	seed := time.Now().UnixNano()
	if v := os.Getenv("DATAGEN_SEED"); v != "" {
		if seed, err = strconv.ParseInt(v, 10, 64); err != nil {
			return fmt.Errorf("DATAGEN_SEED: %w", err)
		}
	}

	if err := storage.WriteFile(args[0], generate(rand.New(rand.NewSource(seed)), count)); err != nil {
		return err
	}
	log.Printf("datagen: wrote %d values to %s (seed %d)", count, args[0], seed)
	return nil
}

// generate returns count values spread over the whole int32 range
func generate(r *rand.Rand, count int) []int32 {
	seq := make([]int32, count)
	for i := range seq {
		seq[i] = int32(r.Uint32())
	}
	return seq
}
