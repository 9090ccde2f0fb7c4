package spectrum

import (
	"math"
	"testing"
)

// TestNew tests spectrum construction and validation
func TestNew(t *testing.T) {
	t.Run("ValidSpectrum", func(t *testing.T) {
		s, err := New("s1", []Peak{{Mass: 43, Intensity: 100}, {Mass: 57, Intensity: 50}}, Metadata{Name: "propane"})
		if err != nil {
			t.Fatalf("Failed to create spectrum: %v", err)
		}
		if s.ID() != "s1" {
			t.Errorf("Expected id s1, got %s", s.ID())
		}
		if s.Len() != 2 {
			t.Errorf("Expected 2 peaks, got %d", s.Len())
		}
		if s.Meta().Name != "propane" {
			t.Errorf("Expected name propane, got %s", s.Meta().Name)
		}
	})

	t.Run("MissingID", func(t *testing.T) {
		_, err := New("", []Peak{{Mass: 43, Intensity: 100}}, Metadata{})
		if err == nil {
			t.Fatal("Expected error for empty identifier")
		}
		if _, ok := err.(*MalformedSpectrumError); !ok {
			t.Errorf("Expected MalformedSpectrumError, got %T", err)
		}
	})

	t.Run("NegativeIntensity", func(t *testing.T) {
		_, err := New("s1", []Peak{{Mass: 43, Intensity: -1}}, Metadata{})
		if err == nil {
			t.Fatal("Expected error for negative intensity")
		}
	})

	t.Run("NaNAndInf", func(t *testing.T) {
		cases := []Peak{
			{Mass: math.NaN(), Intensity: 1},
			{Mass: math.Inf(1), Intensity: 1},
			{Mass: 43, Intensity: math.NaN()},
			{Mass: 43, Intensity: math.Inf(-1)},
		}
		for _, p := range cases {
			if _, err := New("s1", []Peak{p}, Metadata{}); err == nil {
				t.Errorf("Expected error for peak %+v", p)
			}
		}
	})

	t.Run("SortsByMass", func(t *testing.T) {
		s, err := New("s1", []Peak{{Mass: 91, Intensity: 10}, {Mass: 43, Intensity: 100}, {Mass: 57, Intensity: 50}}, Metadata{})
		if err != nil {
			t.Fatalf("Failed to create spectrum: %v", err)
		}
		peaks := s.Peaks()
		for i := 1; i < len(peaks); i++ {
			if peaks[i].Mass <= peaks[i-1].Mass {
				t.Errorf("Peaks not strictly increasing at index %d", i)
			}
		}
	})

	t.Run("MergesDuplicateMasses", func(t *testing.T) {
		s, err := New("s1", []Peak{{Mass: 43, Intensity: 60}, {Mass: 43, Intensity: 40}, {Mass: 57, Intensity: 10}}, Metadata{})
		if err != nil {
			t.Fatalf("Failed to create spectrum: %v", err)
		}
		if s.Len() != 2 {
			t.Fatalf("Expected 2 peaks after merge, got %d", s.Len())
		}
		if s.Peaks()[0].Intensity != 100 {
			t.Errorf("Expected merged intensity 100, got %f", s.Peaks()[0].Intensity)
		}
	})

	t.Run("EmptyPeaksAllowed", func(t *testing.T) {
		s, err := New("s1", nil, Metadata{})
		if err != nil {
			t.Fatalf("Empty spectrum rejected: %v", err)
		}
		if !s.Empty() {
			t.Error("Expected empty spectrum")
		}
	})
}

// TestAccessors tests the derived spectrum values
func TestAccessors(t *testing.T) {
	s, err := New("s1", []Peak{
		{Mass: 43, Intensity: 100},
		{Mass: 57, Intensity: 80},
		{Mass: 91, Intensity: 5},
	}, Metadata{})
	if err != nil {
		t.Fatalf("Failed to create spectrum: %v", err)
	}

	t.Run("MaxIntensity", func(t *testing.T) {
		if got := s.MaxIntensity(); got != 100 {
			t.Errorf("Expected max intensity 100, got %f", got)
		}
	})

	t.Run("BasePeak", func(t *testing.T) {
		base, ok := s.BasePeak()
		if !ok {
			t.Fatal("Expected a base peak")
		}
		if base.Mass != 43 {
			t.Errorf("Expected base peak mass 43, got %f", base.Mass)
		}

		empty, _ := New("e", nil, Metadata{})
		if _, ok := empty.BasePeak(); ok {
			t.Error("Empty spectrum should have no base peak")
		}
	})

	t.Run("MaxMass", func(t *testing.T) {
		// 5% cutoff keeps the peak at 91, 10% drops it.
		if got := s.MaxMass(0.05); got != 91 {
			t.Errorf("Expected max mass 91 at 5%% cutoff, got %f", got)
		}
		if got := s.MaxMass(0.10); got != 57 {
			t.Errorf("Expected max mass 57 at 10%% cutoff, got %f", got)
		}
	})

	t.Run("NormalizedIntensities", func(t *testing.T) {
		norm := s.NormalizedIntensities()
		if len(norm) != 3 {
			t.Fatalf("Expected 3 values, got %d", len(norm))
		}
		if norm[0] != 100 {
			t.Errorf("Base peak should normalize to 100, got %f", norm[0])
		}
		if norm[1] != 80 {
			t.Errorf("Expected 80, got %f", norm[1])
		}
	})

	t.Run("PeaksReturnsCopy", func(t *testing.T) {
		peaks := s.Peaks()
		peaks[0].Intensity = -999
		if s.Peaks()[0].Intensity != 100 {
			t.Error("Mutating returned peaks changed the spectrum")
		}
	})
}

// TestTopMasses tests the display-scaled ranked mass list
func TestTopMasses(t *testing.T) {
	s, err := New("s1", []Peak{
		{Mass: 43, Intensity: 200},
		{Mass: 57, Intensity: 100},
		{Mass: 71, Intensity: 100},
		{Mass: 91, Intensity: 10},
	}, Metadata{})
	if err != nil {
		t.Fatalf("Failed to create spectrum: %v", err)
	}

	t.Run("ScaledTo999", func(t *testing.T) {
		top := s.TopMasses(4)
		if len(top) != 4 {
			t.Fatalf("Expected 4 entries, got %d", len(top))
		}
		if top[0].Mass != 43 || top[0].Intensity != 999 {
			t.Errorf("Expected base peak 43/999, got %f/%d", top[0].Mass, top[0].Intensity)
		}
	})

	t.Run("TieBreakByMass", func(t *testing.T) {
		top := s.TopMasses(3)
		if top[1].Mass != 57 || top[2].Mass != 71 {
			t.Errorf("Equal intensities should order by mass, got %f then %f", top[1].Mass, top[2].Mass)
		}
	})

	t.Run("TruncatesToAvailable", func(t *testing.T) {
		if got := len(s.TopMasses(10)); got != 4 {
			t.Errorf("Expected 4 entries, got %d", got)
		}
	})

	t.Run("EmptyAndZero", func(t *testing.T) {
		if s.TopMasses(0) != nil {
			t.Error("Expected nil for n=0")
		}
		empty, _ := New("e", nil, Metadata{})
		if empty.TopMasses(5) != nil {
			t.Error("Expected nil for empty spectrum")
		}
	})
}
