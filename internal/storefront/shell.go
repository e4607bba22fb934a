package storefront

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/storefront-checkout/internal/cart"
	"github.com/joao-fontenele/storefront-checkout/internal/checkout"
	"github.com/joao-fontenele/storefront-checkout/internal/domain"
	"github.com/joao-fontenele/storefront-checkout/internal/payment"
	"github.com/joao-fontenele/storefront-checkout/internal/platform"
	"github.com/joao-fontenele/storefront-checkout/internal/views"
	"github.com/joao-fontenele/storefront-checkout/internal/wishlist"
)

// Screen is the navigator the shell drives. platform.Terminal satisfies it.
type Screen interface {
	platform.Navigator
	Location() string
	CloseWindows()
	Refocus()
}

type Deps struct {
	Cart         *cart.Store
	Checkout     *checkout.Orchestrator
	History      *views.History
	Detail       *views.Detail
	Confirmation *views.Confirmation
	Wishlist     *wishlist.Service
	Payments     *payment.HTTPBridge
	Screen       Screen
}

// Shell is a line-oriented storefront: one command per line.
type Shell struct {
	deps   Deps
	out    io.Writer
	logger *slog.Logger
}

func NewShell(deps Deps, out io.Writer, logger *slog.Logger) *Shell {
	return &Shell{deps: deps, out: out, logger: logger}
}

var errQuit = errors.New("quit")

// Run reads commands from in until EOF, "quit" or ctx is done.
func (s *Shell) Run(ctx context.Context, in io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	s.printf("Type \"help\" for commands.\n")
	for {
		s.printf("> ")

		var line string
		select {
		case <-ctx.Done():
			return nil
		case l, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			line = l
		}

		err := s.Exec(ctx, line)
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			s.printf("error: %v\n", err)
		}
	}
}

// Exec runs a single command line.
func (s *Shell) Exec(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "help":
		s.printf("%s", helpText)
	case "quit", "exit":
		return errQuit
	case "add":
		return s.add(args)
	case "remove":
		if len(args) != 1 {
			return errors.New("usage: remove <product-id>")
		}
		s.deps.Cart.Remove(args[0])
		return s.showCart()
	case "qty":
		if len(args) != 2 {
			return errors.New("usage: qty <product-id> <quantity>")
		}
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("parse quantity: %w", err)
		}
		s.deps.Cart.SetQuantity(args[0], n)
		return s.showCart()
	case "cart":
		return s.showCart()
	case "address":
		return s.address(line)
	case "method":
		if len(args) != 1 {
			return errors.New("usage: method <cash|card|...>")
		}
		return s.deps.Checkout.SelectPaymentMethod(domain.PaymentMethodType(args[0]))
	case "back":
		s.deps.Checkout.Back()
	case "summary":
		s.summary()
	case "submit":
		return s.submit(ctx)
	case "done":
		s.deps.Screen.CloseWindows()
		s.deps.Screen.Refocus()
	case "success":
		return s.confirmation(ctx)
	case "orders":
		return s.orders(ctx, args)
	case "order":
		if len(args) != 1 {
			return errors.New("usage: order <order-id>")
		}
		if err := s.deps.Detail.Load(ctx, args[0]); err != nil {
			s.logger.Debug("order detail failed", "error", err)
		}
		return s.deps.Detail.Render(s.out)
	case "wish":
		return s.wish(ctx, args)
	case "wishlist":
		s.showWishlist()
	case "card":
		return s.cardPayment(ctx, args)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
	return nil
}

const helpText = `Commands:
  add <id> <price> [qty] [title...]   put a product in the cart
  remove <id> | qty <id> <n> | cart    edit and show the cart
  address <details>|<phone>|<city>[|<postal>]
  method <cash|card|...>               choose how to pay
  summary | submit | back              review and place the order
  done                                 finished paying in the browser
  success                              show the checkout confirmation
  orders [page] | order <id>           order history
  wish <id> <price> [title...] | wishlist
  card <amount>                        charge a card through a payment intent
  quit
`

func (s *Shell) add(args []string) error {
	if len(args) < 2 {
		return errors.New("usage: add <id> <price> [qty] [title...]")
	}
	price, err := decimal.NewFromString(args[1])
	if err != nil {
		return fmt.Errorf("parse price: %w", err)
	}

	qty := 1
	rest := args[2:]
	if len(rest) > 0 {
		if n, err := strconv.Atoi(rest[0]); err == nil {
			qty, rest = n, rest[1:]
		}
	}

	s.deps.Cart.Add(domain.Product{ID: args[0], Title: strings.Join(rest, " "), Price: price}, qty)
	return s.showCart()
}

func (s *Shell) showCart() error {
	snap := s.deps.Cart.Snapshot()
	if snap.IsEmpty() {
		s.printf("Your cart is empty.\n")
		return nil
	}
	for _, item := range snap.Items() {
		s.printf("  %-10s x%-3d %10s\n", item.Product.ID, item.Quantity, views.FormatCurrency(item.LineTotal()))
	}
	s.printf("  %d items, %s\n", snap.Count(), views.FormatCurrency(snap.Total()))
	return nil
}

func (s *Shell) address(line string) error {
	_, raw, _ := strings.Cut(line, " ")
	parts := strings.Split(raw, "|")
	for len(parts) < 4 {
		parts = append(parts, "")
	}

	addr := domain.ShippingAddress{
		Details:    strings.TrimSpace(parts[0]),
		Phone:      strings.TrimSpace(parts[1]),
		City:       strings.TrimSpace(parts[2]),
		PostalCode: strings.TrimSpace(parts[3]),
	}
	if err := s.deps.Checkout.SetAddress(addr); err != nil {
		return err
	}
	s.printf("Address saved. Choose a payment method.\n")
	return nil
}

func (s *Shell) summary() {
	sum := s.deps.Checkout.Summary()
	s.printf("Subtotal: %s\nTax:      %s\nShipping: %s\nTotal:    %s\n",
		views.FormatCurrency(sum.Subtotal), views.FormatCurrency(sum.Tax),
		views.FormatCurrency(sum.Shipping), views.FormatCurrency(sum.Total))
}

func (s *Shell) submit(ctx context.Context) error {
	err := s.deps.Checkout.Submit(ctx)
	state := s.deps.Checkout.State()

	if err != nil {
		for _, field := range slices.Sorted(maps.Keys(state.FieldErrors)) {
			s.printf("  %s: %s\n", field, state.FieldErrors[field])
		}
		if state.Error != "" {
			s.printf("%s\n", state.Error)
			return nil
		}
		return err
	}

	if state.Success != "" {
		s.printf("%s\n", state.Success)
	}
	return nil
}

func (s *Shell) confirmation(ctx context.Context) error {
	var query url.Values
	if loc, err := url.Parse(s.deps.Screen.Location()); err == nil && loc.Path == checkout.ConfirmationPath {
		query = loc.Query()
	}
	if !s.deps.Confirmation.Load(ctx, query) {
		return nil
	}
	return s.deps.Confirmation.Render(s.out)
}

func (s *Shell) orders(ctx context.Context, args []string) error {
	page := 1
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("parse page: %w", err)
		}
		page = n
	}
	if err := s.deps.History.Load(ctx, page); err != nil {
		s.logger.Debug("order history failed", "error", err)
	}
	return s.deps.History.Render(s.out)
}

func (s *Shell) wish(ctx context.Context, args []string) error {
	if s.deps.Wishlist == nil {
		return errors.New("wishlist is not available")
	}
	if len(args) < 2 {
		return errors.New("usage: wish <id> <price> [title...]")
	}
	price, err := decimal.NewFromString(args[1])
	if err != nil {
		return fmt.Errorf("parse price: %w", err)
	}

	on, err := s.deps.Wishlist.Toggle(ctx, domain.Product{ID: args[0], Title: strings.Join(args[2:], " "), Price: price})
	if err != nil {
		return err
	}
	if on {
		s.printf("Added %s to your wishlist.\n", args[0])
	} else {
		s.printf("Removed %s from your wishlist.\n", args[0])
	}
	return nil
}

func (s *Shell) showWishlist() {
	if s.deps.Wishlist == nil || s.deps.Wishlist.IsEmpty() {
		s.printf("Your wishlist is empty.\n")
		return
	}
	for _, item := range s.deps.Wishlist.Items() {
		s.printf("  %-10s %10s  added %s\n", item.ID, views.FormatCurrency(item.Product.Price), views.FormatDate(&item.AddedAt))
	}
}

// cardPayment charges amount through a payment intent and the card element.
func (s *Shell) cardPayment(ctx context.Context, args []string) error {
	if s.deps.Payments == nil {
		return errors.New("card payments are not available")
	}
	if len(args) != 1 {
		return errors.New("usage: card <amount>")
	}
	amount, err := decimal.NewFromString(args[0])
	if err != nil {
		return fmt.Errorf("parse amount: %w", err)
	}

	intent, err := s.deps.Payments.CreatePaymentIntent(ctx, amount, payment.DefaultCurrency)
	if err != nil {
		return err
	}
	if err := s.deps.Payments.MountCardInput(ctx, "card-element"); err != nil {
		return err
	}
	defer s.deps.Payments.Teardown()

	result := s.deps.Payments.ConfirmWithCard(ctx, intent.ClientSecret)
	if !result.Success {
		s.printf("Payment failed: %s\n", result.Error)
		return nil
	}
	s.printf("Payment %s succeeded.\n", result.PaymentIntentID)
	return nil
}

func (s *Shell) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(s.out, format, args...)
}
