package memutils

import (
	"math"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
)

// HeapStatistics summarizes the scratch heaps owned by a frame builder
type HeapStatistics struct {
	HeapCount  int
	HeapBytes  int
	UsedBytes  int
	ResetCount int
	// ResizeCount counts the resizes that actually reallocated the heap
	ResizeCount int
}

func (s *HeapStatistics) Clear() {
	s.HeapCount = 0
	s.HeapBytes = 0
	s.UsedBytes = 0
	s.ResetCount = 0
	s.ResizeCount = 0
}

func (s *HeapStatistics) AddStatistics(other *HeapStatistics) {
	s.HeapCount += other.HeapCount
	s.HeapBytes += other.HeapBytes
	s.UsedBytes += other.UsedBytes
	s.ResetCount += other.ResetCount
	s.ResizeCount += other.ResizeCount
}

func (s *HeapStatistics) PrintJSON(json *jwriter.ObjectState) {
	json.Name("HeapCount").Int(s.HeapCount)
	json.Name("HeapBytes").Int(s.HeapBytes)
	json.Name("UsedBytes").Int(s.UsedBytes)
	json.Name("ResetCount").Int(s.ResetCount)
	json.Name("ResizeCount").Int(s.ResizeCount)
}

// DetailedHeapStatistics adds the spread of recorded usage samples to HeapStatistics
type DetailedHeapStatistics struct {
	HeapStatistics
	SampleCount   int
	SampleSizeMin int
	SampleSizeMax int
}

func (s *DetailedHeapStatistics) Clear() {
	s.HeapStatistics.Clear()
	s.SampleCount = 0
	s.SampleSizeMin = math.MaxInt
	s.SampleSizeMax = 0
}

func (s *DetailedHeapStatistics) AddSample(size int) {
	s.SampleCount++

	if size < s.SampleSizeMin {
		s.SampleSizeMin = size
	}

	if size > s.SampleSizeMax {
		s.SampleSizeMax = size
	}
}

func (s *DetailedHeapStatistics) AddDetailedStatistics(other *DetailedHeapStatistics) {
	s.HeapStatistics.AddStatistics(&other.HeapStatistics)
	s.SampleCount += other.SampleCount

	if other.SampleSizeMin < s.SampleSizeMin {
		s.SampleSizeMin = other.SampleSizeMin
	}

	if other.SampleSizeMax > s.SampleSizeMax {
		s.SampleSizeMax = other.SampleSizeMax
	}
}

func (s *DetailedHeapStatistics) PrintJSON(json *jwriter.ObjectState) {
	s.HeapStatistics.PrintJSON(json)
	json.Name("SampleCount").Int(s.SampleCount)
	if s.SampleCount > 0 {
		json.Name("SampleSizeMin").Int(s.SampleSizeMin)
		json.Name("SampleSizeMax").Int(s.SampleSizeMax)
	}
}
