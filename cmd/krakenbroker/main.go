// Command krakenbroker is a diagnostic CLI for the brokerage: it queries
// quotes, balances, holdings and fee tiers against a live account.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/jhonabreul/krakenbrokerage/brokerage"
	"github.com/jhonabreul/krakenbrokerage/config"
	"github.com/jhonabreul/krakenbrokerage/currency"
	"github.com/jhonabreul/krakenbrokerage/exchanges/kraken"
	"github.com/jhonabreul/krakenbrokerage/exchanges/order"
)

func main() {
	app := &cli.App{
		Name:  "krakenbroker",
		Usage: "query and exercise a Kraken brokerage account",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the persisted configuration file",
				Value:   "config.yaml",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "log raw HTTP traffic",
			},
			&cli.IntFlag{
				Name:  "leverage",
				Usage: "account leverage used when reporting holdings",
				Value: 1,
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "tick",
				Usage:     "print the current quote for a pair, e.g. XBT/USD",
				ArgsUsage: "<pair>",
				Action:    tickCommand,
			},
			{
				Name:   "balance",
				Usage:  "print all cash balances",
				Action: balanceCommand,
			},
			{
				Name:   "holdings",
				Usage:  "print open positions",
				Action: holdingsCommand,
			},
			{
				Name:   "fees",
				Usage:  "print the fee tier for the account's 30-day volume",
				Action: feesCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// discardSink drops order events; the diagnostic commands never trade
type discardSink struct{}

func (discardSink) OnOrderEvent(order.Event) {}

func newBrokerage(c *cli.Context) (*brokerage.Brokerage, *zap.Logger, error) {
	logger, err := zap.NewProduction()
	if err != nil {
		return nil, nil, errors.Wrap(err, "initialising logger")
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, nil, errors.Wrap(err, "loading .env")
	}

	cfg, err := config.Load(c.String("config"), logger)
	if err != nil {
		return nil, nil, errors.Wrap(err, "loading configuration")
	}

	client := kraken.NewClient(kraken.ClientOptions{
		RESTEndpoint:      cfg.RESTEndpoint,
		WebsocketEndpoint: cfg.WebsocketEndpoint,
		Credentials:       &cfg.Credentials,
		OTP:               cfg.OneTimePassword,
		Logger:            logger,
		Verbose:           c.Bool("verbose"),
	})

	b, err := brokerage.New(brokerage.Options{
		Client:   client,
		Sink:     discardSink{},
		Leverage: c.Int("leverage"),
		Logger:   logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return b, logger, nil
}

func commandContext(c *cli.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Context, 30*time.Second)
}

func tickCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("expected exactly one pair argument, e.g. XBT/USD")
	}
	pair, err := currency.NewPairFromString(c.Args().First())
	if err != nil {
		return err
	}

	b, logger, err := newBrokerage(c)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck // stderr sync failure is unactionable

	ctx, cancel := commandContext(c)
	defer cancel()

	tick, err := b.GetTick(ctx, pair)
	if err != nil {
		return errors.Wrapf(err, "fetching tick for %s", pair)
	}
	fmt.Printf("%s bid=%s ask=%s last=%s spread=%s\n",
		tick.Pair, tick.Bid, tick.Ask, tick.Last, tick.Spread())
	return nil
}

func balanceCommand(c *cli.Context) error {
	b, logger, err := newBrokerage(c)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck // stderr sync failure is unactionable

	ctx, cancel := commandContext(c)
	defer cancel()

	balances, err := b.GetCashBalances(ctx)
	if err != nil {
		return errors.Wrap(err, "fetching balances")
	}
	if len(balances) == 0 {
		fmt.Println("no balances")
		return nil
	}
	for _, bal := range balances {
		fmt.Printf("%-6s total=%s hold=%s free=%s\n",
			bal.Currency, bal.Total, bal.Hold, bal.Free())
	}
	return nil
}

func holdingsCommand(c *cli.Context) error {
	b, logger, err := newBrokerage(c)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck // stderr sync failure is unactionable

	ctx, cancel := commandContext(c)
	defer cancel()

	holdings, err := b.GetAccountHoldings(ctx)
	if err != nil {
		return errors.Wrap(err, "fetching holdings")
	}
	if len(holdings.Positions) == 0 {
		fmt.Println("no open positions")
		return nil
	}
	for _, p := range holdings.Positions {
		fmt.Printf("%s %s qty=%s avg=%s cost=%s fee=%s\n",
			p.Pair, p.Side, p.Quantity, p.AveragePrice, p.Cost, p.Fee)
	}
	return nil
}

func feesCommand(c *cli.Context) error {
	b, logger, err := newBrokerage(c)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck // stderr sync failure is unactionable

	ctx, cancel := commandContext(c)
	defer cancel()

	if err := b.LoadFeeSchedule(ctx); err != nil {
		return errors.Wrap(err, "fetching trade volume")
	}
	hundred := decimal.NewFromInt(100)
	fees := b.Fees()
	fmt.Printf("maker=%s%% taker=%s%%\n",
		fees.Rate(brokerage.Maker).Mul(hundred), fees.Rate(brokerage.Taker).Mul(hundred))
	return nil
}
