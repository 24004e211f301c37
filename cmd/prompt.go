package cmd

import (
	"fmt"

	"github.com/charmbracelet/huh"

	"github.com/nextlevelbuilder/pairlink/internal/pairing"
)

// runWithHelp wraps huh fields in a Form with help hints visible at the bottom.
func runWithHelp(fields ...huh.Field) error {
	return huh.NewForm(huh.NewGroup(fields...)).WithShowHelp(true).Run()
}

// promptString prompts for a text input.
// If defaultVal is non-empty it is shown as placeholder; pressing Enter returns it.
func promptString(title, description, defaultVal string) (string, error) {
	var value string
	inp := huh.NewInput().
		Title(title).
		Value(&value)

	if description != "" {
		inp = inp.Description(description)
	}
	if defaultVal != "" {
		inp = inp.Placeholder(defaultVal)
	}

	if err := runWithHelp(inp); err != nil {
		return "", err
	}
	if value == "" {
		return defaultVal, nil
	}
	return value, nil
}

// promptPassword prompts for a hidden input.
func promptPassword(title, description string) (string, error) {
	var value string
	inp := huh.NewInput().
		Title(title).
		EchoMode(huh.EchoModePassword).
		Value(&value)

	if description != "" {
		inp = inp.Description(description)
	}

	if err := runWithHelp(inp); err != nil {
		return "", err
	}
	return value, nil
}

// promptSelect shows a single-select list and returns the chosen value.
func promptSelect[T comparable](title string, options []SelectOption[T], defaultIdx int) (T, error) {
	var value T

	huhOpts := make([]huh.Option[T], len(options))
	for i, opt := range options {
		huhOpts[i] = huh.NewOption(opt.Label, opt.Value)
	}
	if defaultIdx >= 0 && defaultIdx < len(options) {
		huhOpts[defaultIdx] = huhOpts[defaultIdx].Selected(true)
	}

	sel := huh.NewSelect[T]().
		Title(title).
		Options(huhOpts...).
		Value(&value)

	if err := runWithHelp(sel); err != nil {
		var zero T
		return zero, err
	}
	return value, nil
}

// promptConfirm asks a yes/no question. Returns true for yes.
func promptConfirm(title string, defaultYes bool) (bool, error) {
	value := defaultYes

	c := huh.NewConfirm().
		Title(title).
		Affirmative("Yes").
		Negative("No").
		Value(&value)

	if err := runWithHelp(c); err != nil {
		return false, err
	}
	return value, nil
}

// SelectOption represents a single option in a select prompt.
type SelectOption[T any] struct {
	Label string
	Value T
}

// promptAdminPhone asks whether to save an admin phone and, if so, for its
// prefix and number. prefill is a digits-only phone from a failed auto-save;
// when set it is offered as the number with an empty prefix.
func promptAdminPhone(defaultPrefix, prefill string) (prefix, number string, skip bool, err error) {
	save, err := promptSelect("The account is linked. Save the admin phone now?", []SelectOption[bool]{
		{Label: "Save admin phone", Value: true},
		{Label: "Skip for now", Value: false},
	}, 0)
	if err != nil || !save {
		return "", "", true, err
	}

	prefix = defaultPrefix
	if prefill != "" {
		prefix = ""
		number = prefill
	}

	prefixIn := huh.NewInput().
		Title("Country prefix").
		Description("Digits only, e.g. 1 or 84. Leave empty if the number below already includes it.").
		Value(&prefix)
	numberIn := huh.NewInput().
		Title("Phone number").
		Value(&number).
		Validate(func(s string) error {
			if _, err := pairing.NormalizePhone(prefix, s); err != nil {
				return fmt.Errorf("enter %d to %d digits including the country code", pairing.MinPhoneDigits, pairing.MaxPhoneDigits)
			}
			return nil
		})

	if err := runWithHelp(prefixIn, numberIn); err != nil {
		return "", "", true, err
	}
	return prefix, number, false, nil
}

// promptPairingPhone asks for the phone a pairing code should be issued for.
func promptPairingPhone(defaultPrefix string) (prefix, number string, err error) {
	prefix, err = promptString("Country prefix", "Digits only, e.g. 1 or 84", defaultPrefix)
	if err != nil {
		return "", "", err
	}
	number, err = promptString("Phone number", "The number of the WhatsApp account to link", "")
	return prefix, number, err
}
