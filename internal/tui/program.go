package tui

import tea "github.com/charmbracelet/bubbletea"

// Run drives the dashboard to completion (until the user quits),
// connecting the bubbletea program to client.
func Run(client *Client) error {
	p := tea.NewProgram(NewModel(client), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
