package types

import (
	"fmt"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/teris-io/shortid"
)

// GenerateUUID returns a k-sortable unique identifier
func GenerateUUID() string {
	return ulid.Make().String()
}

// GenerateUUIDWithPrefix returns a k-sortable unique identifier
// with a prefix ex inv_01HRZ8W1K3Q7N9X2V4B6C8D0EF
func GenerateUUIDWithPrefix(prefix string) string {
	if prefix == "" {
		return GenerateUUID()
	}
	return fmt.Sprintf("%s_%s", prefix, GenerateUUID())
}

var (
	sidGenerator *shortid.Shortid
	sidOnce      sync.Once
)

func initializeSID() {
	var err error
	sidGenerator, err = shortid.New(1, shortid.DefaultABC, 2342)
	if err != nil {
		panic("failed to initialize shortid generator: " + err.Error())
	}
}

// GenerateShortIDWithPrefix returns an upper-case short id with a prefix,
// capped at 12 characters in total, e.g. `INV-XYZ12A8Q`.
func GenerateShortIDWithPrefix(prefix string) string {
	sidOnce.Do(initializeSID)

	id, err := sidGenerator.Generate()
	if err != nil {
		return ""
	}
	id = strings.NewReplacer("-", "", "_", "").Replace(id)

	availableLen := 12 - len(prefix)
	if availableLen <= 0 {
		return ""
	}
	if len(id) > availableLen {
		id = id[:availableLen]
	}

	return strings.ToUpper(prefix + id)
}

const (
	UUID_PREFIX_SUBSCRIPTION            = "subs"
	UUID_PREFIX_SUBSCRIPTION_ITEM       = "subs_item"
	UUID_PREFIX_SUBSCRIPTION_CHANGE_LOG = "subs_log"
	UUID_PREFIX_PLAN                    = "plan"
	UUID_PREFIX_PRICE                   = "price"
	UUID_PREFIX_FEATURE                 = "feat"
	UUID_PREFIX_INVOICE                 = "inv"
	UUID_PREFIX_INVOICE_LINE_ITEM       = "inv_line"
	UUID_PREFIX_PAYMENT_ATTEMPT         = "attempt"
	UUID_PREFIX_OUTBOX_MESSAGE          = "evt"
	UUID_PREFIX_WEBHOOK_ENDPOINT        = "whep"
	UUID_PREFIX_WEBHOOK_DELIVERY        = "whdl"
	UUID_PREFIX_USAGE_RECORD            = "usage"
)

const (
	SHORT_ID_PREFIX_INVOICE = "INV-"
)
