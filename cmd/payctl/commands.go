package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/noah-isme/backend-lms/internal/checkout"
	"github.com/noah-isme/backend-lms/internal/config"
	"github.com/noah-isme/backend-lms/internal/payment"
)

var errRejected = errors.New("notification rejected")

func vnpayURLCmd(load func() (*config.Config, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vnpay-url",
		Short: "Print a signed VNPay payment URL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			orderID, _ := cmd.Flags().GetString("order-id")
			if orderID == "" {
				orderID = checkout.NewOrderID()
			}
			amount, _ := cmd.Flags().GetString("amount")
			courseKey, _ := cmd.Flags().GetString("course")
			ip, _ := cmd.Flags().GetString("ip")

			redirect, err := payment.NewVNPay(cfg.VNPayConfig()).BuildRedirectURL(
				orderID, checkout.NormaliseAmount(amount), checkout.Description(courseKey, orderID), ip)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), redirect)
			return nil
		},
	}

	cmd.Flags().StringP("amount", "a", "0", "Amount in whole currency units")
	cmd.Flags().StringP("order-id", "o", "", "Order id (generated when empty)")
	cmd.Flags().StringP("course", "c", "", "Course key used in the order description")
	cmd.Flags().String("ip", "", "Customer IP address")

	return cmd
}

func verifyVNPayCmd(load func() (*config.Config, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify-vnpay [url]",
		Short: "Verify a captured VNPay IPN or return URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			u, err := url.Parse(args[0])
			if err != nil {
				return fmt.Errorf("parse url: %w", err)
			}
			res := payment.NewVNPay(cfg.VNPayConfig()).VerifyQuery(u.Query())
			return printVerdict(cmd, res)
		},
	}
	cmd.Flags().BoolP("json", "j", false, "Output as JSON")
	return cmd
}

func verifyMoMoCmd(load func() (*config.Config, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify-momo [file|-]",
		Short: "Verify a captured MoMo IPN body",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			body, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			momo, err := payment.NewMoMo(cfg.MoMoConfig(), nil, zerolog.Nop())
			if err != nil {
				return err
			}
			return printVerdict(cmd, momo.VerifyPayload(body))
		},
	}
	cmd.Flags().BoolP("json", "j", false, "Output as JSON")
	return cmd
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

type verdict struct {
	Valid         bool   `json:"valid"`
	Provider      string `json:"provider"`
	OrderID       string `json:"orderId"`
	Status        string `json:"status,omitempty"`
	ResultCode    string `json:"resultCode"`
	Amount        int64  `json:"amount"`
	TransactionID string `json:"transactionId,omitempty"`
	Error         string `json:"error,omitempty"`
}

// printVerdict reports the result and fails the command when it is not valid.
func printVerdict(cmd *cobra.Command, res payment.WebhookVerifyResult) error {
	v := verdict{
		Valid:         res.Valid,
		Provider:      res.Provider,
		OrderID:       res.OrderID,
		Status:        res.Status,
		ResultCode:    res.ResultCode,
		Amount:        res.Amount,
		TransactionID: res.TransactionID,
	}
	if res.Err != nil {
		v.Error = res.Err.Error()
	}

	out := cmd.OutOrStdout()
	asJSON, _ := cmd.Flags().GetBool("json")
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(out, "Provider:    %s\n", v.Provider)
		fmt.Fprintf(out, "Valid:       %t\n", v.Valid)
		fmt.Fprintf(out, "Order:       %s\n", v.OrderID)
		fmt.Fprintf(out, "Result code: %s\n", v.ResultCode)
		if v.Valid {
			fmt.Fprintf(out, "Status:      %s\n", v.Status)
			fmt.Fprintf(out, "Amount:      %d\n", v.Amount)
		} else {
			fmt.Fprintf(out, "Error:       %s\n", v.Error)
		}
	}
	if !res.Valid {
		return errRejected
	}
	return nil
}
