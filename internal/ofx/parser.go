// Package ofx imports OFX/QFX bank and credit card statement files.
package ofx

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/aclindsa/ofxgo"

	"github.com/Veraticus/spendlens/internal/common"
	"github.com/Veraticus/spendlens/internal/model"
)

var (
	severityRegex = regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	// Opening tags at end of line that are missing their closing bracket.
	tagFixRegex = regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
)

// Parser implements OFX/QFX file parsing.
type Parser struct {
	logger *slog.Logger
}

// NewParser creates a new OFX parser.
func NewParser() *Parser {
	return &Parser{logger: common.ComponentLogger("ofx")}
}

// preprocessOFX fixes common formatting issues in OFX files.
func (p *Parser) preprocessOFX(content string) string {
	// Trim any leading whitespace or blank lines before the header
	content = strings.TrimLeft(content, " \t\r\n")

	// Fix mixed-case SEVERITY values (should be INFO, WARN, or ERROR)
	content = severityRegex.ReplaceAllStringFunc(content, strings.ToUpper)

	// Fix missing closing angle brackets in SGML-style OFX files
	return tagFixRegex.ReplaceAllString(content, "$1>")
}

// ParseFile parses an OFX/QFX file into one statement per account.
// Transactions keep the file's sign: debits are negative.
func (p *Parser) ParseFile(ctx context.Context, reader io.Reader) ([]Statement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read OFX file: %w", err)
	}

	resp, err := ofxgo.ParseResponse(strings.NewReader(p.preprocessOFX(string(content))))
	if err != nil {
		return nil, fmt.Errorf("failed to parse OFX file: %w", err)
	}

	var statements []Statement
	var total int

	// Process bank messages
	for _, msg := range resp.Bank {
		if stmt, ok := msg.(*ofxgo.StatementResponse); ok {
			s := p.bankStatement(stmt)
			total += len(s.Transactions)
			statements = append(statements, s)
		}
	}

	// Process credit card messages
	for _, msg := range resp.CreditCard {
		if stmt, ok := msg.(*ofxgo.CCStatementResponse); ok {
			s := p.creditCardStatement(stmt)
			total += len(s.Transactions)
			statements = append(statements, s)
		}
	}

	p.logger.Info("Parsed OFX file",
		"statements", len(statements),
		"total_transactions", total)

	return statements, nil
}

// bankStatement converts an OFX bank statement to our model.
func (p *Parser) bankStatement(stmt *ofxgo.StatementResponse) Statement {
	accountID := string(stmt.BankAcctFrom.AcctID)
	s := Statement{
		AccountID:   accountID,
		AccountType: stmt.BankAcctFrom.AcctType.String(),
		Currency:    stmt.CurDef.String(),
		Balance:     ledgerBalance(stmt.BalAmt, stmt.DtAsOf, stmt.AvailBalAmt, stmt.CurDef.String()),
	}
	if stmt.BankTranList != nil {
		for _, ofxTx := range stmt.BankTranList.Transactions {
			s.Transactions = append(s.Transactions, p.convertTransaction(ofxTx, accountID, s.Currency))
		}
	}
	return s
}

// creditCardStatement converts OFX credit card transactions to our model.
func (p *Parser) creditCardStatement(stmt *ofxgo.CCStatementResponse) Statement {
	accountID := string(stmt.CCAcctFrom.AcctID)
	s := Statement{
		AccountID:   accountID,
		AccountType: "CREDITCARD",
		Currency:    stmt.CurDef.String(),
		Balance:     ledgerBalance(stmt.BalAmt, stmt.DtAsOf, stmt.AvailBalAmt, stmt.CurDef.String()),
	}
	if stmt.BankTranList != nil {
		for _, ofxTx := range stmt.BankTranList.Transactions {
			s.Transactions = append(s.Transactions, p.convertTransaction(ofxTx, accountID, s.Currency))
		}
	}
	return s
}

func ledgerBalance(ledger ofxgo.Amount, asOf ofxgo.Date, available *ofxgo.Amount, currency string) *model.Balance {
	if asOf.IsZero() {
		return nil
	}
	current, _ := ledger.Float64()
	b := &model.Balance{AsOf: asOf.UTC(), Currency: currency, Current: current, Available: current}
	if available != nil {
		b.Available, _ = available.Float64()
	}
	return b
}

// convertTransaction converts an OFX transaction to our model. FITIDs are
// only unique per account, so the ID is scoped by it.
func (p *Parser) convertTransaction(ofxTx ofxgo.Transaction, accountID, currency string) model.Transaction {
	// ofxTx.TrnAmt is a big.Rat; OFX uses negative for debits
	amount, _ := ofxTx.TrnAmt.Float64()

	description := strings.TrimSpace(string(ofxTx.Name))
	if description == "" && ofxTx.Payee != nil {
		description = strings.TrimSpace(string(ofxTx.Payee.Name))
	}
	if memo := strings.TrimSpace(string(ofxTx.Memo)); memo != "" && isGenericDescription(description) {
		description = memo
	}

	return model.Transaction{
		ID:              fmt.Sprintf("ofx-%s-%s", accountID, ofxTx.FiTID),
		Timestamp:       model.FormatTimestamp(ofxTx.DtPosted.Time),
		Description:     description,
		MerchantName:    p.extractMerchantName(ofxTx),
		Amount:          amount,
		Currency:        currency,
		TransactionType: ofxTx.TrnType.String(), // e.g., DEBIT, CHECK, PAYMENT, ATM
	}
}

// extractMerchantName tries to get a clean merchant name from OFX data.
func (p *Parser) extractMerchantName(tx ofxgo.Transaction) string {
	// Prefer PAYEE if available (cleaner merchant name)
	if tx.Payee != nil && tx.Payee.Name != "" {
		return string(tx.Payee.Name)
	}

	// Fall back to NAME field
	name := string(tx.Name)

	// Use MEMO field if NAME is generic
	if tx.Memo != "" && isGenericDescription(name) {
		// Sometimes MEMO has better merchant info
		name = string(tx.Memo)
	}

	// Basic cleanup
	name = strings.TrimSpace(name)

	// Remove common prefixes
	prefixes := []string{
		"POS PURCHASE ",
		"CARD PAYMENT TO ",
		"DEBIT CARD PURCHASE ",
		"CONTACTLESS PAYMENT ",
		"DIRECT DEBIT ",
		"VISA PURCHASE ",
		"MC PURCHASE ",
		"DEBIT PURCHASE ",
	}

	for _, prefix := range prefixes {
		if strings.HasPrefix(strings.ToUpper(name), prefix) {
			name = name[len(prefix):]
			break
		}
	}

	// Clean up date patterns like "DD/MM" at the beginning
	if len(name) > 5 && name[2] == '/' && name[5] == ' ' {
		name = strings.TrimSpace(name[6:])
	}

	return name
}

// isGenericDescription checks if a transaction name is too generic.
func isGenericDescription(name string) bool {
	generic := []string{
		"DEBIT",
		"CREDIT",
		"PURCHASE",
		"PAYMENT",
		"POS TRANSACTION",
		"CARD PURCHASE",
	}

	upperName := strings.ToUpper(strings.TrimSpace(name))
	for _, g := range generic {
		if upperName == g {
			return true
		}
	}
	return false
}

// Statement is one account's transactions and closing balance.
type Statement struct {
	Balance      *model.Balance
	AccountID    string
	AccountType  string
	Currency     string
	Transactions []model.Transaction
}

// Range returns the smallest [from, to) covering every transaction. Both are
// zero when the statement is empty.
func (s Statement) Range() (from, to time.Time) {
	for _, txn := range s.Transactions {
		ts, err := txn.Time()
		if err != nil {
			continue
		}
		if from.IsZero() || ts.Before(from) {
			from = ts
		}
		if to.IsZero() || ts.After(to) {
			to = ts
		}
	}
	if !to.IsZero() {
		to = to.Add(time.Second)
	}
	return from, to
}
