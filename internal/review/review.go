// Package review is the interactive pre-flight screen shown before a
// migration is applied. It walks through the execution plan, the risk
// assessment, and the recommended mitigations, and collects an explicit
// approval. HIGH and CRITICAL migrations additionally require typing the
// migration version to confirm.
package review

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/safemigrate/safemigrate/internal/mitigation"
	"github.com/safemigrate/safemigrate/internal/orchestrator"
	"github.com/safemigrate/safemigrate/internal/risk"
)

// State identifies the current review screen.
type State int

const (
	StateOverview State = iota
	StateOperations
	StateRisk
	StateMitigations
	StateDecision
	StateConfirmTyped
	StateDone
)

// Decision is the outcome of a review session.
type Decision int

const (
	DecisionPending Decision = iota
	DecisionApproved
	DecisionRejected
)

// Model is the Bubble Tea model for plan review.
type Model struct {
	state      State
	plan       *orchestrator.ExecutionPlan
	assessment *risk.Assessment
	strategies []mitigation.Strategy

	opIndex      int
	choiceIndex  int
	confirmInput textinput.Model
	confirmError string
	decision     Decision

	width  int
	height int
}

// New creates a review model for one execution plan. The assessment and
// strategies are optional; screens without data are skipped.
func New(plan *orchestrator.ExecutionPlan, assessment *risk.Assessment, strategies []mitigation.Strategy) Model {
	if plan == nil || plan.Migration == nil {
		panic("review: execution plan is required")
	}

	input := textinput.New()
	input.Placeholder = plan.Migration.Version
	input.Focus()

	return Model{
		state:        StateOverview,
		plan:         plan,
		assessment:   assessment,
		strategies:   strategies,
		confirmInput: input,
	}
}

// Decision returns the review outcome, DecisionPending until the session
// finishes.
func (m Model) Decision() Decision {
	return m.decision
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.state != StateConfirmTyped || msg.String() == "ctrl+c" {
				m.decision = DecisionRejected
				m.state = StateDone
				return m, tea.Quit
			}
			return m.handleTextInput(msg)

		case "enter":
			return m.handleEnter()

		case "up", "k":
			return m.handleUp()

		case "down", "j":
			return m.handleDown()

		default:
			return m.handleTextInput(msg)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	}

	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	switch m.state {
	case StateOverview:
		return m.renderOverview()
	case StateOperations:
		return m.renderOperations()
	case StateRisk:
		return m.renderRisk()
	case StateMitigations:
		return m.renderMitigations()
	case StateDecision:
		return m.renderDecision()
	case StateConfirmTyped:
		return m.renderConfirmTyped()
	case StateDone:
		return m.renderDone()
	default:
		return "Unknown state"
	}
}

// State transition handlers

func (m Model) handleEnter() (tea.Model, tea.Cmd) {
	switch m.state {
	case StateOverview:
		m.state = StateOperations
		return m, nil

	case StateOperations:
		if m.assessment != nil {
			m.state = StateRisk
		} else {
			m.state = StateDecision
		}
		return m, nil

	case StateRisk:
		if len(m.strategies) > 0 {
			m.state = StateMitigations
		} else {
			m.state = StateDecision
		}
		return m, nil

	case StateMitigations:
		m.state = StateDecision
		return m, nil

	case StateDecision:
		if m.choiceIndex == 1 {
			m.decision = DecisionRejected
			m.state = StateDone
			return m, tea.Quit
		}
		if m.requiresTypedConfirmation() {
			m.state = StateConfirmTyped
			return m, nil
		}
		m.decision = DecisionApproved
		m.state = StateDone
		return m, tea.Quit

	case StateConfirmTyped:
		typed := strings.TrimSpace(m.confirmInput.Value())
		if typed != m.plan.Migration.Version {
			m.confirmError = fmt.Sprintf("%q does not match the migration version", typed)
			return m, nil
		}
		m.decision = DecisionApproved
		m.state = StateDone
		return m, tea.Quit

	case StateDone:
		return m, tea.Quit
	}

	return m, nil
}

func (m Model) handleUp() (tea.Model, tea.Cmd) {
	switch m.state {
	case StateOperations:
		if m.opIndex > 0 {
			m.opIndex--
		}
	case StateDecision:
		if m.choiceIndex > 0 {
			m.choiceIndex--
		}
	case StateConfirmTyped:
		return m.handleTextInput(tea.KeyMsg{Type: tea.KeyUp})
	}
	return m, nil
}

func (m Model) handleDown() (tea.Model, tea.Cmd) {
	switch m.state {
	case StateOperations:
		if m.opIndex < len(m.plan.Migration.Operations)-1 {
			m.opIndex++
		}
	case StateDecision:
		if m.choiceIndex < 1 {
			m.choiceIndex++
		}
	case StateConfirmTyped:
		return m.handleTextInput(tea.KeyMsg{Type: tea.KeyDown})
	}
	return m, nil
}

func (m Model) handleTextInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.state == StateConfirmTyped {
		var cmd tea.Cmd
		m.confirmInput, cmd = m.confirmInput.Update(msg)
		return m, cmd
	}
	return m, nil
}

// requiresTypedConfirmation reports whether approval needs the version typed
// back. HIGH and CRITICAL assessments qualify, as does a plan without any
// rollback capability.
func (m Model) requiresTypedConfirmation() bool {
	if m.plan.RollbackStrategy == orchestrator.RollbackNone {
		return true
	}
	if m.assessment == nil {
		return false
	}
	return m.assessment.Level == risk.LevelHigh || m.assessment.Level == risk.LevelCritical
}

// View renderers

func (m Model) renderOverview() string {
	var b strings.Builder
	migration := m.plan.Migration

	b.WriteString(renderHeader("Migration Review"))
	b.WriteString("\n\n")
	b.WriteString(fmt.Sprintf("Version:    %s\n", migration.Version))
	b.WriteString(fmt.Sprintf("Schema:     %s\n", migration.SchemaName))
	if migration.Description != "" {
		b.WriteString(fmt.Sprintf("Purpose:    %s\n", migration.Description))
	}
	b.WriteString(fmt.Sprintf("Operations: %d\n", len(migration.Operations)))
	b.WriteString(fmt.Sprintf("Rollback:   %s\n", m.plan.RollbackStrategy))
	b.WriteString(fmt.Sprintf("Estimated:  %dms\n", m.plan.EstimatedDurationMS))

	if len(m.plan.Checkpoints) > 0 {
		b.WriteString("\n")
		b.WriteString(renderInfo(fmt.Sprintf("%d checkpoint(s) will be created before risky operations.", len(m.plan.Checkpoints))))
	}
	if m.plan.RollbackStrategy == orchestrator.RollbackNone {
		b.WriteString("\n")
		b.WriteString(renderWarning("This plan cannot be rolled back."))
	}

	b.WriteString("\n\n")
	b.WriteString(renderStatusBar("Enter: review operations  q: reject"))
	return borderStyle.Render(b.String())
}

func (m Model) renderOperations() string {
	var b strings.Builder

	b.WriteString(renderHeader("Migration Review"))
	b.WriteString("\n\n")
	b.WriteString(renderSectionHeader("Operations"))
	b.WriteString("\n\n")

	for i, op := range m.plan.Migration.Operations {
		line := fmt.Sprintf("%d. %s %s", i+1, op.OperationType, op.TableName)
		if op.ColumnName != "" {
			line += "." + op.ColumnName
		}
		b.WriteString(renderOption(i == m.opIndex, line))
		b.WriteString("\n")
	}

	op := m.plan.Migration.Operations[m.opIndex]
	b.WriteString("\n")
	b.WriteString(labelStyle.Render("SQL: "))
	b.WriteString(op.SQLCommand)
	b.WriteString("\n")
	if op.RollbackSQL != "" {
		b.WriteString(labelStyle.Render("Undo: "))
		b.WriteString(op.RollbackSQL)
	} else {
		b.WriteString(renderWarning("No rollback SQL for this operation."))
	}

	b.WriteString("\n\n")
	b.WriteString(renderStatusBar("↑/↓: inspect  Enter: continue  q: reject"))
	return borderStyle.Render(b.String())
}

func (m Model) renderRisk() string {
	var b strings.Builder
	a := m.assessment

	b.WriteString(renderHeader("Migration Review"))
	b.WriteString("\n\n")
	b.WriteString(renderSectionHeader("Risk Assessment"))
	b.WriteString("\n\n")

	style := levelStyle(string(a.Level))
	b.WriteString(fmt.Sprintf("Overall: %s (%.1f/100)\n\n", style.Render(string(a.Level)), a.OverallScore))

	for _, category := range risk.Categories {
		score := a.CategoryScore(category)
		b.WriteString(fmt.Sprintf("  %-26s %5.1f  %s\n",
			category, score.Score, levelStyle(string(score.Level)).Render(string(score.Level))))
	}

	if a.Level == risk.LevelCritical {
		b.WriteString("\n")
		b.WriteString(renderError("CRITICAL risk: approval requires typing the migration version."))
	}

	b.WriteString("\n\n")
	b.WriteString(renderStatusBar("Enter: continue  q: reject"))
	return borderStyle.Render(b.String())
}

func (m Model) renderMitigations() string {
	var b strings.Builder

	b.WriteString(renderHeader("Migration Review"))
	b.WriteString("\n\n")
	b.WriteString(renderSectionHeader("Recommended Mitigations"))
	b.WriteString("\n\n")

	for _, strategy := range m.strategies {
		b.WriteString(fmt.Sprintf("  [%s] %s (%.0fh)\n",
			levelStyle(string(strategy.Priority)).Render(string(strategy.Priority)),
			strategy.Name, strategy.EstimatedEffortHours))
	}

	b.WriteString("\n")
	b.WriteString(renderInfo("Mitigations are advisory. Approving the migration does not apply them."))
	b.WriteString("\n\n")
	b.WriteString(renderStatusBar("Enter: continue  q: reject"))
	return borderStyle.Render(b.String())
}

func (m Model) renderDecision() string {
	var b strings.Builder

	b.WriteString(renderHeader("Migration Review"))
	b.WriteString("\n\n")
	b.WriteString(renderSectionHeader("Decision"))
	b.WriteString("\n\n")
	b.WriteString(fmt.Sprintf("Apply migration %s?\n\n", m.plan.Migration.Version))
	b.WriteString(renderOption(m.choiceIndex == 0, "Approve and apply"))
	b.WriteString("\n")
	b.WriteString(renderOption(m.choiceIndex == 1, "Reject"))
	b.WriteString("\n\n")
	b.WriteString(renderStatusBar("↑/↓: choose  Enter: confirm  q: reject"))
	return borderStyle.Render(b.String())
}

func (m Model) renderConfirmTyped() string {
	var b strings.Builder

	b.WriteString(renderHeader("Migration Review"))
	b.WriteString("\n\n")
	b.WriteString(renderWarning("This migration needs explicit confirmation."))
	b.WriteString("\n\n")
	b.WriteString(fmt.Sprintf("Type the migration version (%s) to approve:\n\n  ", m.plan.Migration.Version))
	b.WriteString(m.confirmInput.View())
	b.WriteString("\n")

	if m.confirmError != "" {
		b.WriteString("\n")
		b.WriteString(renderError(m.confirmError))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(renderStatusBar("Enter: confirm  ctrl+c: reject"))
	return borderStyle.Render(b.String())
}

func (m Model) renderDone() string {
	var b strings.Builder

	b.WriteString(renderHeader("Migration Review"))
	b.WriteString("\n\n")
	if m.decision == DecisionApproved {
		b.WriteString(renderSuccess("Migration approved."))
	} else {
		b.WriteString(renderError("Migration rejected."))
	}
	b.WriteString("\n")
	return borderStyle.Render(b.String())
}

// Run shows the review screen and returns the operator's decision.
func Run(plan *orchestrator.ExecutionPlan, assessment *risk.Assessment, strategies []mitigation.Strategy) (Decision, error) {
	p := tea.NewProgram(New(plan, assessment, strategies))
	final, err := p.Run()
	if err != nil {
		return DecisionPending, err
	}
	model, ok := final.(Model)
	if !ok {
		return DecisionPending, fmt.Errorf("unexpected model type %T", final)
	}
	return model.Decision(), nil
}
