package main

import (
	"fmt"
	"strconv"

	"github.com/MarkoPoloResearchLab/courtbook/internal/schema"
	"github.com/MarkoPoloResearchLab/courtbook/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/courtbook/pkg/booking"
	"github.com/spf13/cobra"
)

func newMigrateCommand(cfg *runtimeConfig) *cobra.Command {
	var listOnly bool
	cmd := &cobra.Command{
		Use:       "migrate [up|down]",
		Short:     "Apply or roll back the database schema",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{string(schema.DirectionUp), string(schema.DirectionDown)},
		RunE: func(cmd *cobra.Command, args []string) error {
			if listOnly {
				names, err := schema.Files()
				if err != nil {
					return err
				}
				for _, name := range names {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
				return nil
			}
			rawDirection := string(schema.DirectionUp)
			if len(args) == 1 {
				rawDirection = args[0]
			}
			direction, err := schema.ParseDirection(rawDirection)
			if err != nil {
				return err
			}
			if schema.IsPostgresURL(cfg.DatabaseURL) {
				if err := schema.Apply(cfg.DatabaseURL, direction); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "migration %s successful\n", direction)
				return nil
			}
			if direction != schema.DirectionUp {
				return fmt.Errorf("sqlite schema supports %s only", schema.DirectionUp)
			}
			db, cleanup, driver, err := openDatabase(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("database open: %w", err)
			}
			defer func() { _ = cleanup() }()
			if err := prepareSchema(db, driver, cfg.DatabaseURL); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migration %s successful\n", direction)
			return nil
		},
	}
	cmd.Flags().BoolVar(&listOnly, "list", false, "print the embedded postgres migrations and exit")
	return cmd
}

func newAdminCommand(cfg *runtimeConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Maintain the court catalog and exchange rate",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "set-rate RATE",
		Short: "Set the exchange rate recorded on new payments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return fmt.Errorf("parse rate: %w", err)
			}
			rate, err := booking.NewExchangeRate(value)
			if err != nil {
				return err
			}
			store, cleanup, err := openAdminStore(cmd, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = cleanup() }()
			if err := store.SaveExchangeRate(cmd.Context(), rate); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exchange rate set to %v\n", rate.Float64())
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "add-court ID NAME PRICE_PER_HOUR [IMAGE]",
		Short: "Create or update a court",
		Args:  cobra.RangeArgs(3, 4),
		RunE: func(cmd *cobra.Command, args []string) error {
			courtID, err := booking.NewCourtID(args[0])
			if err != nil {
				return err
			}
			price, err := strconv.ParseFloat(args[2], 64)
			if err != nil {
				return fmt.Errorf("parse price: %w", err)
			}
			hourlyRate, err := booking.AmountCentsFromDecimal(price)
			if err != nil {
				return err
			}
			court := booking.Court{ID: courtID, Name: args[1], HourlyRate: hourlyRate}
			if len(args) == 4 {
				court.Image = args[3]
			}
			store, cleanup, err := openAdminStore(cmd, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = cleanup() }()
			if err := store.SaveCourt(cmd.Context(), court); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "court %s saved\n", courtID)
			return nil
		},
	})
	return cmd
}

// openAdminStore always uses gorm; catalog writes are not part of booking.Store.
func openAdminStore(cmd *cobra.Command, cfg *runtimeConfig) (*gormstore.Store, func() error, error) {
	db, cleanup, driver, err := openDatabase(cmd.Context(), cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("database open: %w", err)
	}
	if err := prepareSchema(db, driver, cfg.DatabaseURL); err != nil {
		_ = cleanup()
		return nil, nil, err
	}
	return gormstore.New(db), cleanup, nil
}
