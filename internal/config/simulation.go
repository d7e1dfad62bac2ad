package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Simulation holds the SIM_* settings of cmd/simulate. Ratios are
// normalised to sum to 1.
type Simulation struct {
	APIBaseURL      string
	Duration        time.Duration
	Workers         int
	Day             time.Time
	BookingRatio    float64
	RescheduleRatio float64
	CancelRatio     float64
	PatientLimit    int
}

// LoadSimulation reads the SIM_* keys. SIM_DAY is a date in loc and
// defaults to tomorrow.
func LoadSimulation(loc *time.Location) (Simulation, error) {
	_ = godotenv.Load()
	return loadSimulation(viper.New(), loc, time.Now())
}

func loadSimulation(v *viper.Viper, loc *time.Location, now time.Time) (Simulation, error) {
	v.AutomaticEnv()
	v.SetDefault("SIM_API_BASE_URL", "http://localhost:8080")
	v.SetDefault("SIM_WORKERS", 10)
	v.SetDefault("SIM_BOOKING_RATIO", 0.7)
	v.SetDefault("SIM_RESCHEDULE_RATIO", 0.2)
	v.SetDefault("SIM_CANCEL_RATIO", 0.1)
	v.SetDefault("SIM_PATIENT_LIMIT", 2000)
	v.SetDefault("SIM_DAY", now.In(loc).AddDate(0, 0, 1).Format(time.DateOnly))

	sim := Simulation{
		APIBaseURL:      v.GetString("SIM_API_BASE_URL"),
		Duration:        getDuration(v, "SIM_DURATION", 30*time.Second),
		Workers:         v.GetInt("SIM_WORKERS"),
		BookingRatio:    v.GetFloat64("SIM_BOOKING_RATIO"),
		RescheduleRatio: v.GetFloat64("SIM_RESCHEDULE_RATIO"),
		CancelRatio:     v.GetFloat64("SIM_CANCEL_RATIO"),
		PatientLimit:    v.GetInt("SIM_PATIENT_LIMIT"),
	}

	day, err := time.ParseInLocation(time.DateOnly, v.GetString("SIM_DAY"), loc)
	if err != nil {
		return Simulation{}, fmt.Errorf("invalid SIM_DAY: %w", err)
	}
	sim.Day = day

	if sim.Workers <= 0 {
		return Simulation{}, errors.New("SIM_WORKERS must be > 0")
	}
	if sim.Duration <= 0 {
		return Simulation{}, errors.New("SIM_DURATION must be > 0")
	}

	total := sim.BookingRatio + sim.RescheduleRatio + sim.CancelRatio
	if sim.BookingRatio < 0 || sim.RescheduleRatio < 0 || sim.CancelRatio < 0 || total <= 0 {
		return Simulation{}, errors.New("SIM_*_RATIO values must be non-negative and not all zero")
	}
	sim.BookingRatio /= total
	sim.RescheduleRatio /= total
	sim.CancelRatio /= total
	return sim, nil
}
