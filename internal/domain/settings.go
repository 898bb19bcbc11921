package domain

import "time"

// ============================================================
// Settings
// ============================================================

// Settings section names.
const (
	SectionCompany       = "company"
	SectionNotifications = "notifications"
	SectionPayment       = "payment"
	SectionBranding      = "branding"
	SectionSubscription  = "subscription"
)

// SettingsSections lists every known section.
var SettingsSections = []string{
	SectionCompany,
	SectionNotifications,
	SectionPayment,
	SectionBranding,
	SectionSubscription,
}

// Section is one independently updatable key/value group of settings.
type Section map[string]any

// Settings is the per-principal singleton, keyed by section name.
type Settings map[string]Section

// IsSettingsSection reports whether name is a known section.
func IsSettingsSection(name string) bool {
	for _, s := range SettingsSections {
		if s == name {
			return true
		}
	}
	return false
}

// Merge returns a new section with partial shallow-merged over s.
func (s Section) Merge(partial Section) Section {
	out := make(Section, len(s)+len(partial))
	for k, v := range s {
		out[k] = v
	}
	for k, v := range partial {
		out[k] = v
	}
	return out
}

// Clone copies the section map. Values are shared and must be treated as immutable.
func (s Section) Clone() Section {
	return s.Merge(nil)
}

// Clone copies every section.
func (st Settings) Clone() Settings {
	out := make(Settings, len(st))
	for name, sec := range st {
		out[name] = sec.Clone()
	}
	return out
}

// WithSection returns a copy of st where only the named section received partial.
func (st Settings) WithSection(name string, partial Section) Settings {
	out := make(Settings, len(st)+1)
	for k, v := range st {
		out[k] = v
	}
	out[name] = st[name].Merge(partial)
	return out
}

// OverDefaults fills every missing section of st from the built-in defaults.
func (st Settings) OverDefaults(now time.Time) Settings {
	out := DefaultSettings(now)
	for name, sec := range st {
		out[name] = sec.Clone()
	}
	return out
}

// DefaultSettings returns the built-in settings for a new principal.
func DefaultSettings(now time.Time) Settings {
	return Settings{
		SectionCompany:       DefaultSection(SectionCompany, now),
		SectionNotifications: DefaultSection(SectionNotifications, now),
		SectionPayment:       DefaultSection(SectionPayment, now),
		SectionBranding:      DefaultSection(SectionBranding, now),
		SectionSubscription:  DefaultSection(SectionSubscription, now),
	}
}

// DefaultSection returns the built-in value of one section, or an empty
// section for unknown names.
func DefaultSection(name string, now time.Time) Section {
	switch name {
	case SectionCompany:
		return Section{
			"name":    "PayPing Solutions",
			"email":   "admin@payping.com",
			"phone":   "+1 (555) 123-4567",
			"address": "123 Business St, Suite 100",
			"city":    "San Francisco",
			"state":   "CA",
			"zipCode": "94102",
			"website": "https://payping.com",
		}
	case SectionNotifications:
		return Section{
			"emailReminders": true,
			"smsReminders":   false,
			"daysBefore":     3,
			"escalationDays": 7,
			"sendReceipts":   true,
			"weeklyReports":  true,
		}
	case SectionPayment:
		return Section{
			"currency":        "USD",
			"lateFeePercent":  5,
			"gracePeriodDays": 5,
			"autoReminders":   true,
			"paymentMethods":  []any{"credit_card", "bank_transfer", "paypal"},
		}
	case SectionBranding:
		return Section{
			"primaryColor":    "#3B82F6",
			"secondaryColor":  "#10B981",
			"emailTemplate":   "modern",
			"invoiceTemplate": "professional",
		}
	case SectionSubscription:
		return Section{
			"plan":      "free",
			"status":    "active",
			"startDate": now.UTC().Format(time.RFC3339),
			"features": map[string]any{
				"maxCustomers": 10,
				"maxReminders": 25,
				"templates":    3,
				"users":        1,
			},
		}
	default:
		return Section{}
	}
}
