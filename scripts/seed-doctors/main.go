// Command seed-doctors loads a JSON list of doctors into the users table so
// the phone dialogue has someone to book with.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

type doctor struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Specialty string `json:"specialty"`
}

func main() {
	_ = godotenv.Load()
	if len(os.Args) < 2 {
		fmt.Println("Usage: seed-doctors <doctors.json>")
		fmt.Println("Example: seed-doctors testdata/doctors.json")
		os.Exit(1)
	}

	f, err := os.Open(os.Args[1])
	if err != nil {
		fmt.Printf("Error opening file: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	doctors, err := readDoctors(f)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, os.Getenv("DATABASE_URL"))
	if err != nil {
		fmt.Printf("Error connecting: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	for _, d := range doctors {
		if _, err := pool.Exec(ctx, upsertDoctor, d.Name, strings.ToLower(d.Email), d.Phone, d.Specialty); err != nil {
			fmt.Printf("Error seeding %s: %v\n", d.Name, err)
			os.Exit(1)
		}
		fmt.Printf("seeded Dr. %s (%s)\n", d.Name, d.Specialty)
	}
}

const upsertDoctor = `
	INSERT INTO users (name, email, phone, role, specialty)
	VALUES ($1, $2, $3, 'doctor', $4)
	ON CONFLICT (email) DO UPDATE
	SET name = EXCLUDED.name, phone = EXCLUDED.phone, role = 'doctor', specialty = EXCLUDED.specialty`

func readDoctors(r io.Reader) ([]doctor, error) {
	var doctors []doctor
	if err := json.NewDecoder(r).Decode(&doctors); err != nil {
		return nil, fmt.Errorf("decode doctors: %w", err)
	}
	for i, d := range doctors {
		if strings.TrimSpace(d.Name) == "" || strings.TrimSpace(d.Email) == "" {
			return nil, fmt.Errorf("doctor %d: name and email are required", i)
		}
	}
	if len(doctors) == 0 {
		return nil, errors.New("no doctors in file")
	}
	return doctors, nil
}
