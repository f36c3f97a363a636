package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	weekKeyRegex = regexp.MustCompile(`^\d{4}-W\d{2}$`)
	tierIDRegex  = regexp.MustCompile(`^[a-z0-9][a-z0-9_\-]{0,63}$`)
)

// ValidateTimezone checks that tz names a loadable IANA location.
func ValidateTimezone(tz string) error {
	if strings.TrimSpace(tz) == "" {
		return fmt.Errorf("timezone is required")
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return fmt.Errorf("unknown timezone: %s", tz)
	}
	return nil
}

// ValidatePositiveAmount checks that an amount is positive.
func ValidatePositiveAmount(amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("amount must be positive, got %d", amount)
	}
	return nil
}

// ValidateWeekKey checks the "YYYY-Www" shape.
func ValidateWeekKey(key string) error {
	if !weekKeyRegex.MatchString(key) {
		return fmt.Errorf("invalid week key: %q", key)
	}
	return nil
}

// ValidateCategory checks a challenge or mission category.
func ValidateCategory(c Category) error {
	if !c.Valid() {
		return fmt.Errorf("unknown category: %s", c)
	}
	return nil
}

// ValidateShopItem checks an admin-submitted catalog item.
func ValidateShopItem(item *ShopItem) error {
	if strings.TrimSpace(item.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if err := ValidatePositiveAmount(item.Price); err != nil {
		return fmt.Errorf("price: %w", err)
	}
	if item.IsLimited {
		if item.Stock == nil {
			return fmt.Errorf("limited item requires stock")
		}
		if *item.Stock < 0 {
			return fmt.Errorf("stock must not be negative")
		}
	}
	return nil
}

// ValidateSpecialEvent checks the window and tier definitions of an event.
func ValidateSpecialEvent(e *SpecialEvent) error {
	if strings.TrimSpace(e.Title) == "" {
		return fmt.Errorf("title is required")
	}
	if e.StartDate.IsZero() || e.EndDate.IsZero() {
		return fmt.Errorf("start_date and end_date are required")
	}
	if !e.EndDate.After(e.StartDate) {
		return fmt.Errorf("end_date must be after start_date")
	}
	seen := make(map[string]bool, len(e.RewardTiers))
	for _, t := range e.RewardTiers {
		if !tierIDRegex.MatchString(t.ID) {
			return fmt.Errorf("invalid tier id: %q", t.ID)
		}
		if seen[t.ID] {
			return fmt.Errorf("duplicate tier id: %s", t.ID)
		}
		seen[t.ID] = true
		if t.Key == "" {
			return fmt.Errorf("tier %s: key is required", t.ID)
		}
		if t.Threshold <= 0 || t.Points <= 0 {
			return fmt.Errorf("tier %s: threshold and points must be positive", t.ID)
		}
	}
	return nil
}
