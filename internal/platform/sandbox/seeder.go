// Package sandbox generates synthetic clinic data for demo and
// development environments: doctors with published slot grids, a share
// of them booked, a few cancelled to leave reopened slots behind.
package sandbox

import (
	"context"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicflow/clinicflow/internal/domain/appointment"
)

// Booker is the slice of the appointment service the seeder drives.
type Booker interface {
	OpenSlot(ctx context.Context, doctorID uuid.UUID, at time.Time, feeCents int64) (*appointment.Appointment, error)
	BookAppointment(ctx context.Context, doctorID, patientID uuid.UUID, at time.Time, reason string) (*appointment.Appointment, error)
	CancelAppointment(ctx context.Context, id uuid.UUID, reason string) (*appointment.Appointment, error)
}

// SeedConfig controls the volume and shape of generated data. The same
// Seed value reproduces the same dataset against an empty database.
type SeedConfig struct {
	DoctorCount int
	Days        int
	SlotsPerDay int
	BookRatio   float64
	CancelRatio float64
	Seed        int64
}

// DefaultSeedConfig returns a small dataset suitable for local demos.
func DefaultSeedConfig() SeedConfig {
	return SeedConfig{
		DoctorCount: 5,
		Days:        7,
		SlotsPerDay: 8,
		BookRatio:   0.6,
		CancelRatio: 0.1,
		Seed:        1,
	}
}

// SeedReport summarizes what a seeding run created.
type SeedReport struct {
	Doctors   int `json:"doctors"`
	Slots     int `json:"slots"`
	Booked    int `json:"booked"`
	Cancelled int `json:"cancelled"`
}

type Seeder struct {
	svc    Booker
	cfg    SeedConfig
	logger zerolog.Logger
}

func NewSeeder(svc Booker, cfg SeedConfig, logger zerolog.Logger) *Seeder {
	return &Seeder{svc: svc, cfg: cfg, logger: logger}
}

var seedReasons = []string{
	"annual checkup", "follow-up", "flu symptoms", "back pain",
	"prescription renewal", "lab results review",
}

// Run generates the dataset. Slot grids start tomorrow at 09:00 UTC,
// one slot per hour.
func (s *Seeder) Run(ctx context.Context) (*SeedReport, error) {
	rng := rand.New(rand.NewSource(s.cfg.Seed))
	report := &SeedReport{Doctors: s.cfg.DoctorCount}

	dayStart := time.Now().UTC().Truncate(24 * time.Hour).Add(24*time.Hour + 9*time.Hour)

	for d := 0; d < s.cfg.DoctorCount; d++ {
		doctorID := uuid.New()
		fee := int64(2500 + rng.Intn(20)*500)

		for day := 0; day < s.cfg.Days; day++ {
			for slot := 0; slot < s.cfg.SlotsPerDay; slot++ {
				at := dayStart.Add(time.Duration(day)*24*time.Hour + time.Duration(slot)*time.Hour)

				if _, err := s.svc.OpenSlot(ctx, doctorID, at, fee); err != nil {
					return report, err
				}
				report.Slots++

				if rng.Float64() >= s.cfg.BookRatio {
					continue
				}
				reason := seedReasons[rng.Intn(len(seedReasons))]
				booked, err := s.svc.BookAppointment(ctx, doctorID, uuid.New(), at, reason)
				if err != nil {
					return report, err
				}
				report.Booked++

				if rng.Float64() < s.cfg.CancelRatio {
					if _, err := s.svc.CancelAppointment(ctx, booked.ID, "schedule change"); err != nil {
						return report, err
					}
					report.Cancelled++
				}
			}
		}
	}

	s.logger.Info().
		Int("doctors", report.Doctors).
		Int("slots", report.Slots).
		Int("booked", report.Booked).
		Int("cancelled", report.Cancelled).
		Msg("sandbox data seeded")
	return report, nil
}
