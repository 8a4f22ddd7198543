package core

import (
	"errors"
	"sort"
	"strings"
	"unicode/utf8"
)

const (
	CategoryNeeds   Category = "Needs"
	CategoryWants   Category = "Wants"
	CategorySavings Category = "Savings"
)

const (
	TimeframeMonth Timeframe = "month"
	TimeframeYear  Timeframe = "year"
)

type (
	Category string

	// Timeframe is the reporting window: the current calendar month or year.
	Timeframe string

	// Identity is the minimal who-did-this record attached to transactions
	// and chat messages.
	Identity struct {
		UID  string `json:"uid"`
		Name string `json:"name,omitempty"`
	}

	// Member is one half of the household, selectable at login.
	Member struct {
		UID       string `json:"uid"`
		Name      string `json:"name"`
		PIN       string `json:"-"`
		AvatarURL string `json:"avatarUrl,omitempty"`
	}

	// Household is the set of members sharing a ledger. Two members today,
	// but nothing below assumes exactly two.
	Household struct {
		Members []Member
	}

	// Transaction is one logged expense. Amount stays text end to end:
	// arithmetic goes through ParseAmount, which degrades malformed input
	// to zero instead of failing.
	Transaction struct {
		ID        string   `json:"id"`
		Amount    string   `json:"amount"`
		Category  Category `json:"category"`
		Item      string   `json:"item"`
		Partner   string   `json:"partner"`
		AddedBy   Identity `json:"addedBy"`
		Desc      string   `json:"desc,omitempty"`
		Timestamp int64    `json:"timestamp"`
	}

	// BudgetAllocation is one member's budget configuration, replaced
	// wholesale on every save. Percentages are expected to sum to 100 but
	// that is not enforced.
	BudgetAllocation struct {
		Needs   int     `json:"needs"`
		Wants   int     `json:"wants"`
		Savings int     `json:"savings"`
		IncomeA float64 `json:"incomeA"`
		IncomeB float64 `json:"incomeB"`
	}

	// ChatMessage is one message in the two-party finance chat.
	ChatMessage struct {
		ID         string `json:"id"`
		Message    string `json:"message"`
		Timestamp  int64  `json:"timestamp"`
		SenderID   string `json:"senderId"`
		SenderName string `json:"senderName"`
	}
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidCategory  = errors.New("invalid category")
	ErrInvalidTimeframe = errors.New("invalid timeframe")
	ErrUnknownPartner   = errors.New("unknown partner")
	ErrEmptyMessage     = errors.New("empty message")
	ErrNotOwner         = errors.New("only the creator may delete a transaction")
)

// Categories returns the fixed top-level budget buckets, in display order.
func Categories() []Category {
	return []Category{CategoryNeeds, CategoryWants, CategorySavings}
}

func (c Category) Valid() bool {
	switch c {
	case CategoryNeeds, CategoryWants, CategorySavings:
		return true
	}
	return false
}

// ItemsFor returns the suggested sub-category labels for a category.
// The item field itself stays free-form.
func ItemsFor(c Category) []string {
	switch c {
	case CategoryNeeds:
		return []string{"Rent", "Groceries", "Utilities", "Transportation", "To Parents", "Others"}
	case CategoryWants:
		return []string{"Drinks", "Food", "Outings", "Vacation", "Shopping", "Debt"}
	case CategorySavings:
		return []string{"Emergency Funds", "Mutual Funds", "Gold/Silver", "Lend"}
	}
	return nil
}

func (tf Timeframe) Validate() error {
	switch tf {
	case TimeframeMonth, TimeframeYear:
		return nil
	}
	return ErrInvalidTimeframe
}

// ID derives the stable household identifier: member uids sorted and
// concatenated, so both clients compute the same partition key.
func (h Household) ID() string {
	uids := make([]string, len(h.Members))
	for i, m := range h.Members {
		uids[i] = m.UID
	}
	sort.Strings(uids)
	return strings.Join(uids, "")
}

// PartnerNames returns the member display names in stable order.
func (h Household) PartnerNames() []string {
	names := make([]string, len(h.Members))
	for i, m := range h.Members {
		names[i] = m.Name
	}
	return names
}

// MemberByUID looks a member up by uid.
func (h Household) MemberByUID(uid string) (Member, bool) {
	for _, m := range h.Members {
		if m.UID == uid {
			return m, true
		}
	}
	return Member{}, false
}

// OtherMember returns the member that is not uid. With exactly two
// members this is the notification recipient for anything uid does.
func (h Household) OtherMember(uid string) (Member, bool) {
	for _, m := range h.Members {
		if m.UID != uid {
			return m, true
		}
	}
	return Member{}, false
}

// HasPartner reports whether name identifies a household member.
func (h Household) HasPartner(name string) bool {
	for _, m := range h.Members {
		if m.Name == name {
			return true
		}
	}
	return false
}

// RoomID derives the deterministic chat room id for two participants:
// uids sorted and joined with an underscore.
func RoomID(uidA, uidB string) string {
	if uidB < uidA {
		uidA, uidB = uidB, uidA
	}
	return uidA + "_" + uidB
}

// Validate checks a transaction as submitted for creation. ID and
// Timestamp are server-assigned and ignored here.
func (t Transaction) Validate() error {
	amt, err := ParseAmountStrict(t.Amount)
	if err != nil {
		return err
	}
	if amt.IsNegative() {
		return ErrInvalidAmount
	}
	if !t.Category.Valid() {
		return ErrInvalidCategory
	}
	if strings.TrimSpace(t.Partner) == "" {
		return ErrUnknownPartner
	}
	if strings.TrimSpace(t.AddedBy.UID) == "" {
		return errors.New("missing creator identity")
	}
	if len(t.Desc) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	return nil
}

// DefaultAllocation is the 50/30/20 starting configuration with no income
// reported yet.
func DefaultAllocation() BudgetAllocation {
	return BudgetAllocation{Needs: 50, Wants: 30, Savings: 20}
}

// Percent returns the allocation percentage for a category.
func (a BudgetAllocation) Percent(c Category) int {
	switch c {
	case CategoryNeeds:
		return a.Needs
	case CategoryWants:
		return a.Wants
	case CategorySavings:
		return a.Savings
	}
	return 0
}

// TotalIncome is the shared monthly pool both budgets draw from.
func (a BudgetAllocation) TotalIncome() float64 {
	return a.IncomeA + a.IncomeB
}

func (a BudgetAllocation) Validate() error {
	for _, pct := range []int{a.Needs, a.Wants, a.Savings} {
		if pct < 0 || pct > 100 {
			return errors.New("allocation percent out of range")
		}
	}
	if a.IncomeA < 0 || a.IncomeB < 0 {
		return errors.New("income cannot be negative")
	}
	return nil
}

func (m ChatMessage) Validate() error {
	msg := strings.TrimSpace(m.Message)
	if msg == "" {
		return ErrEmptyMessage
	}
	if !utf8.ValidString(msg) {
		return errors.New("message is not valid utf-8")
	}
	if len(msg) > 2000 {
		return errors.New("message too long (max 2000 bytes)")
	}
	if strings.TrimSpace(m.SenderID) == "" {
		return errors.New("missing sender")
	}
	return nil
}
