package transactions

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Processor applies transactions to a ledger and keeps the history that
// disputes refer back to.
//
// A Processor is not safe for concurrent use. Apply needs exclusive access
// to both the ledger and the history; callers that share a Processor across
// goroutines must guard both with a single lock.
type Processor struct {
	ledger  *Ledger
	history *History
	log     *logrus.Entry
}

// Option configures a Processor
type Option func(*Processor)

// WithLogger routes the processor's debug and trace output to logger
func WithLogger(logger *logrus.Entry) Option {
	return func(p *Processor) {
		p.log = logger
	}
}

// NewProcessor creates a processor with an empty ledger and history
func NewProcessor(opts ...Option) *Processor {
	discard := logrus.New()
	discard.SetOutput(io.Discard)

	p := &Processor{
		ledger:  NewLedger(),
		history: NewHistory(),
		log:     logrus.NewEntry(discard),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Ledger exposes the ledger for inspection. Its accessors return copies.
func (p *Processor) Ledger() *Ledger {
	return p.ledger
}

// History exposes the live history for read-only inspection
func (p *Processor) History() *History {
	return p.history
}

// Snapshot returns an independent copy of the current balances
func (p *Processor) Snapshot() Snapshot {
	return p.ledger.Snapshot()
}

// Apply validates t and, if accepted, applies it to the ledger.
//
// Checks run in order and stop at the first failure: duplicate id and
// negative amount (deposits and withdrawals only), locked account, then
// the kind-specific rules. A rejected transaction leaves balances and
// history untouched.
func (p *Processor) Apply(t Transaction) error {
	log := p.log.WithFields(logrus.Fields{
		"type":   t.Type,
		"client": t.Client,
		"tx":     t.TX,
	})
	log.Debug("applying transaction")

	if t.HasAmount() {
		if p.history.Contains(t.TX) {
			return reject(ErrDuplicateTransactionID, t)
		}
		if t.Amount.IsNegative() {
			return reject(ErrNegativeAmount, t)
		}
	}

	switch t.Type {
	case Deposit:
		return p.deposit(log, t)
	case Withdrawal:
		return p.withdraw(log, t)
	case Dispute:
		return p.dispute(log, t)
	case Resolve:
		return p.resolve(log, t)
	case Chargeback:
		return p.chargeback(log, t)
	default:
		return reject(ErrUnknownType, t)
	}
}

func (p *Processor) deposit(log *logrus.Entry, t Transaction) error {
	acc := p.ledger.getOrCreate(t.Client)
	if acc.locked {
		return reject(ErrAccountLocked, t)
	}

	log.WithField("before", acc.balance()).Trace("account")
	acc.deposit(t.Amount)
	p.history.record(t)
	log.WithField("after", acc.balance()).Trace("account")

	return nil
}

func (p *Processor) withdraw(log *logrus.Entry, t Transaction) error {
	acc := p.ledger.getOrCreate(t.Client)
	if acc.locked {
		return reject(ErrAccountLocked, t)
	}

	shortfall := t.Amount.Sub(acc.available)
	if shortfall.IsPositive() {
		rej := reject(ErrInsufficientFunds, t)
		rej.Shortfall = shortfall
		return rej
	}

	log.WithField("before", acc.balance()).Trace("account")
	acc.withdraw(t.Amount)
	p.history.record(t)
	log.WithField("after", acc.balance()).Trace("account")

	return nil
}

func (p *Processor) dispute(log *logrus.Entry, t Transaction) error {
	acc, dep, err := p.disputeTarget(t)
	if err != nil {
		return err
	}
	if acc.isDisputed(t.TX) {
		return reject(ErrTransactionAlreadyDisputed, t)
	}

	log.WithField("before", acc.balance()).Trace("account")
	acc.hold(t.TX, dep.Amount)
	log.WithField("after", acc.balance()).Trace("account")

	return nil
}

func (p *Processor) resolve(log *logrus.Entry, t Transaction) error {
	acc, dep, err := p.disputeTarget(t)
	if err != nil {
		return err
	}
	if !acc.isDisputed(t.TX) {
		return reject(ErrTransactionNotDisputed, t)
	}

	log.WithField("before", acc.balance()).Trace("account")
	acc.release(t.TX, dep.Amount)
	log.WithField("after", acc.balance()).Trace("account")

	return nil
}

func (p *Processor) chargeback(log *logrus.Entry, t Transaction) error {
	acc, dep, err := p.disputeTarget(t)
	if err != nil {
		return err
	}
	if !acc.isDisputed(t.TX) {
		return reject(ErrTransactionNotDisputed, t)
	}

	log.WithField("before", acc.balance()).Trace("account")
	acc.chargeback(t.TX, dep.Amount)
	log.WithField("after", acc.balance()).Trace("account")
	log.Info("account locked by chargeback")

	return nil
}

// disputeTarget runs the checks shared by disputes, resolves and chargebacks:
// the account must not be locked and tx must name a disputable deposit.
func (p *Processor) disputeTarget(t Transaction) (*account, Transaction, error) {
	acc := p.ledger.get(t.Client)
	if acc != nil && acc.locked {
		return nil, Transaction{}, reject(ErrAccountLocked, t)
	}

	dep, ok := p.history.Get(t.TX)
	if !ok || !disputableDeposit(dep, t.Client) || acc == nil {
		return nil, Transaction{}, reject(ErrDisputedTransactionDoesNotExist, t)
	}
	return acc, dep, nil
}

// disputableDeposit is the rule deciding which history entries a dispute may
// refer to: only deposits, and only the disputing client's own. A client
// cannot hold funds it never received, so another client's deposit is
// reported as nonexistent rather than leaking that the tx id is taken.
func disputableDeposit(t Transaction, client uint16) bool {
	return t.Type == Deposit && t.Client == client
}
