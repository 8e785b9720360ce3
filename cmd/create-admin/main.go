package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/jackc/pgx/v5"
	"golang.org/x/term"

	"github.com/stemsi/exstem-attempt/internal/config"
	"github.com/stemsi/exstem-attempt/internal/database"
	"github.com/stemsi/exstem-attempt/internal/logger"
	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/repository"
	"github.com/stemsi/exstem-attempt/internal/service"
	"github.com/stemsi/exstem-attempt/internal/validator"
)

func main() {
	promote := flag.Bool("promote", false, "Grant admin rights to an existing user instead of creating one")
	revoke := flag.Bool("revoke", false, "Revoke admin rights from an existing user")
	flag.Parse()

	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Initialize Service ────────────────────────────────────────────
	userRepo := repository.NewUserRepository(pool)
	authService := service.NewAuthService(cfg, nil, userRepo, log)

	// ─── CLI Input ─────────────────────────────────────────────────────
	reader := bufio.NewReader(os.Stdin)
	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	prompt := func(label string) string {
		if interactive {
			fmt.Print(label)
		}
		s, _ := reader.ReadString('\n')
		return strings.TrimSpace(s)
	}

	if *promote || *revoke {
		phone := validator.NormalizePhone(prompt("Enter Phone: "))
		if !validator.ValidPhone(phone) {
			fmt.Println("Error: invalid phone number")
			os.Exit(1)
		}
		u, err := userRepo.SetAdmin(ctx, phone, !*revoke)
		if errors.Is(err, pgx.ErrNoRows) {
			fmt.Printf("Error: no user with phone %s\n", phone)
			os.Exit(1)
		}
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to update user")
		}
		fmt.Printf("User %s %s (%s) is_admin=%t\n", u.LastName, u.FirstName, u.Phone, u.IsAdmin)
		return
	}

	fmt.Println("=== Create New Admin User ===")

	lastName := prompt("Enter Last Name: ")
	firstName := prompt("Enter First Name: ")
	if lastName == "" || firstName == "" {
		fmt.Println("Error: Name is required")
		os.Exit(1)
	}

	// The phone doubles as the login secret, so it is not echoed.
	var phone string
	if interactive {
		fmt.Print("Enter Phone: ")
		b, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			fmt.Println("Error reading phone")
			os.Exit(1)
		}
		phone = string(b)
	} else {
		phone = prompt("")
	}
	phone = validator.NormalizePhone(phone)
	if !validator.ValidPhone(phone) {
		fmt.Println("Error: invalid phone number")
		os.Exit(1)
	}

	faculty := prompt("Enter Faculty (default admin): ")
	if faculty == "" {
		faculty = "admin"
	}

	// ─── Logic ─────────────────────────────────────────────────────────
	hash, err := authService.HashPassword(phone)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to hash phone")
	}

	u := &model.User{
		LastName:     lastName,
		FirstName:    firstName,
		Phone:        phone,
		Faculty:      faculty,
		PasswordHash: hash,
		IsAdmin:      true,
	}
	if err := userRepo.Create(ctx, u); err != nil {
		if errors.Is(err, repository.ErrDuplicatePhone) {
			fmt.Println("Error: phone already registered; rerun with -promote")
			os.Exit(1)
		}
		log.Fatal().Err(err).Msg("Failed to create admin")
	}

	fmt.Printf("\nSuccess! Admin '%s %s' created with ID: %d\n", u.LastName, u.FirstName, u.ID)
}
