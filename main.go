package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"library-server/library"
	"library-server/server"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var dbPath string

	root := &cobra.Command{
		Use:   "library-server",
		Short: "Library catalog and circulation service",
	}
	root.PersistentFlags().StringVar(&dbPath, "db", "library.db", "path to the SQLite database")
	root.AddCommand(serveCmd(&dbPath), createAdminCmd(&dbPath))
	return root
}

func serveCmd(dbPath *string) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := os.Getenv("LIBRARY_JWT_SECRET")
			if secret == "" {
				return fmt.Errorf("LIBRARY_JWT_SECRET must be set")
			}

			svc, err := library.NewService(*dbPath)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer svc.Close()

			return server.New(svc, []byte(secret)).Start(addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	return cmd
}

func createAdminCmd(dbPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "create-admin",
		Short: "Create an administrator account interactively",
		RunE: func(cmd *cobra.Command, args []string) error {
			sc := bufio.NewScanner(os.Stdin)

			email, err := promptLine(sc, "Email: ")
			if err != nil {
				return err
			}
			fullName, err := promptLine(sc, "Full name: ")
			if err != nil {
				return err
			}
			password, err := readPassword("Password: ")
			if err != nil {
				return err
			}
			if password == "" {
				return fmt.Errorf("password cannot be empty")
			}

			db, err := library.NewDatabase(*dbPath)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()

			user, err := db.CreateUser(context.Background(), email, password, fullName, library.RoleAdmin)
			if err != nil {
				return err
			}
			fmt.Printf("Created admin %s (ID %d)\n", user.Email, user.ID)
			return nil
		},
	}
}

func promptLine(sc *bufio.Scanner, prompt string) (string, error) {
	fmt.Print(prompt)
	if !sc.Scan() {
		return "", fmt.Errorf("input closed")
	}
	value := strings.TrimSpace(sc.Text())
	if value == "" {
		return "", fmt.Errorf("value cannot be empty")
	}
	return value, nil
}

// readPassword securely reads a password with masking.
func readPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return "", err
	}
	fmt.Println()
	return strings.TrimSpace(string(bytePassword)), nil
}
