package components

// ConfirmDialog renders a yes/no confirmation.
func ConfirmDialog(title, message string) string {
	header := dialogHeaderStyle.Render(title)
	body := boxMutedStyle.Render(SanitizeText(message))
	hint := boxMutedStyle.Render("\ny: confirm | n: cancel")
	return dialogStyle.Render(header + "\n\n" + body + hint)
}

// InputDialog renders a prompt around an already rendered input line.
func InputDialog(title, input string) string {
	header := dialogHeaderStyle.Render(title)
	field := dialogFieldStyle.Render(input)
	hint := boxMutedStyle.Render("\nenter: submit | esc: cancel")
	return dialogStyle.Render(header + "\n\n" + field + hint)
}
