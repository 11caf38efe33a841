package viz

import (
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"
	"gonum.org/v1/gonum/num/quat"

	"github.com/san-kum/dmp/internal/metrics"
	"github.com/san-kum/dmp/internal/sim"
	"github.com/san-kum/dmp/internal/so3"
)

const (
	width           = 60
	height          = 20
	historyCapacity = 4000
	frameRate       = 60
)

// Live is a primitive the view can drive: step, restart and retime.
type Live interface {
	sim.Primitive
	SetTau(v float64) error
}

type TickMsg time.Time

// Model steps a primitive at wall-clock speed and draws its path.
type Model struct {
	prim    Live
	restart func() error
	title   string
	dt      float64
	tau     float64
	perTick int

	sample   sim.Sample
	history  []sim.Sample
	path     [][2]float64
	phases   []float64
	dists    []float64
	axes     [2]int
	canvas   *Canvas
	running  bool
	playHead int
	err      error
	showHelp bool
}

// NewModel drives prim, which must already be started, with tick dt. restart
// starts the motion again; tau is the current movement duration.
func NewModel(prim Live, restart func() error, title string, dt, tau float64) Model {
	perTick := int(math.Round(1 / (frameRate * dt)))
	if perTick < 1 {
		perTick = 1
	}
	m := Model{
		prim:     prim,
		restart:  restart,
		title:    title,
		dt:       dt,
		tau:      tau,
		perTick:  perTick,
		sample:   sim.NewSample(prim.PositionDim(), prim.Dim()),
		canvas:   NewCanvas(width, height),
		running:  true,
		playHead: -1,
		axes:     [2]int{0, 1},
	}
	m.record()
	return m
}

func tick() tea.Cmd {
	return tea.Tick(time.Second/frameRate, func(t time.Time) tea.Msg { return TickMsg(t) })
}

func (m Model) Init() tea.Cmd {
	return tick()
}

// Update handles input events and steps the primitive.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ":
			m.running = !m.running
		case "r":
			m.reset()
		case "[":
			m.scrub(-m.perTick)
		case "]":
			m.scrub(m.perTick)
		case "up", "k":
			m.retime(1.1)
		case "down", "j":
			m.retime(1 / 1.1)
		case "?":
			m.showHelp = !m.showHelp
		}
	case TickMsg:
		if m.running {
			if m.playHead == -1 {
				m.advance(m.perTick)
			} else {
				m.scrub(m.perTick)
			}
		}
		return m, tick()
	}
	return m, nil
}

// advance steps n ticks unless the primitive has finished or failed.
func (m *Model) advance(n int) {
	for i := 0; i < n && m.err == nil && !m.prim.Done(); i++ {
		if err := m.prim.Step(m.dt); err != nil {
			m.err = err
			return
		}
		m.record()
	}
}

func (m *Model) record() {
	m.prim.Snapshot(&m.sample)
	s := m.sample.Clone()
	m.history = append(m.history, s)
	m.phases = append(m.phases, s.Phase)
	m.dists = append(m.dists, metrics.Distance(s.Position, s.Goal))
	if len(m.history) > historyCapacity {
		m.history = m.history[1:]
		m.phases = m.phases[1:]
		m.dists = m.dists[1:]
	}
	m.reproject()
}

// reproject picks the two position axes that move the most and rebuilds the path.
// Orientations are drawn as rotation vectors.
func (m *Model) reproject() {
	pts := make([][3]float64, len(m.history))
	lo := [3]float64{math.Inf(1), math.Inf(1), math.Inf(1)}
	hi := [3]float64{math.Inf(-1), math.Inf(-1), math.Inf(-1)}
	for i, s := range m.history {
		pts[i] = point(s.Position)
		for k := range lo {
			lo[k] = math.Min(lo[k], pts[i][k])
			hi[k] = math.Max(hi[k], pts[i][k])
		}
	}
	m.axes = widest(lo, hi)
	m.path = m.path[:0]
	for _, p := range pts {
		m.path = append(m.path, [2]float64{p[m.axes[0]], p[m.axes[1]]})
	}
}

func point(pos []float64) [3]float64 {
	var p [3]float64
	if len(pos) == 4 {
		r := so3.LogMap(quat.Number{Real: pos[0], Imag: pos[1], Jmag: pos[2], Kmag: pos[3]})
		return [3]float64{r.X, r.Y, r.Z}
	}
	copy(p[:], pos)
	return p
}

// widest returns, in order, the two axes with the largest range.
func widest(lo, hi [3]float64) [2]int {
	drop := 0
	for k := 1; k < 3; k++ {
		if hi[k]-lo[k] < hi[drop]-lo[drop] {
			drop = k
		}
	}
	switch drop {
	case 0:
		return [2]int{1, 2}
	case 1:
		return [2]int{0, 2}
	default:
		return [2]int{0, 1}
	}
}

func (m *Model) scrub(dir int) {
	if m.playHead == -1 {
		if len(m.history) == 0 {
			return
		}
		m.playHead = len(m.history) - 1
		m.running = false
	}
	m.playHead += dir
	if m.playHead < 0 {
		m.playHead = 0
	}
	if m.playHead >= len(m.history) {
		m.playHead = -1
	}
}

func (m *Model) retime(factor float64) {
	if err := m.prim.SetTau(m.tau * factor); err != nil {
		m.err = err
		return
	}
	m.tau *= factor
}

func (m *Model) reset() {
	m.history = m.history[:0]
	m.phases = m.phases[:0]
	m.dists = m.dists[:0]
	m.playHead = -1
	m.err = nil
	if m.restart != nil {
		m.err = m.restart()
	}
	if m.err == nil {
		m.err = m.prim.SetTau(m.tau)
	}
	m.record()
	m.running = true
}

// current returns the sample on screen: the scrubbed one during replay.
func (m Model) current() (sim.Sample, int) {
	if m.playHead >= 0 && m.playHead < len(m.history) {
		return m.history[m.playHead], m.playHead + 1
	}
	return m.history[len(m.history)-1], len(m.history)
}

func (m Model) status() string {
	switch {
	case m.err != nil:
		return StatusFailed.Render("FAILED")
	case m.playHead != -1:
		return StatusPaused.Render(fmt.Sprintf("REPLAY %d/%d", m.playHead+1, len(m.history)))
	case m.prim.Done():
		return StatusRunning.Render("DONE")
	case !m.running:
		return StatusPaused.Render("PAUSED")
	default:
		return StatusRunning.Render("RUNNING")
	}
}

// View renders the path canvas and the stats panel.
func (m Model) View() string {
	s, n := m.current()

	m.canvas.Clear()
	b := Fit(m.path)
	m.canvas.Path(b, m.path[:n])
	goal := point(s.Goal)
	m.canvas.Marker(b, goal[m.axes[0]], goal[m.axes[1]])
	axis := "xyz"
	caption := fmt.Sprintf("%c-%c", axis[m.axes[0]], axis[m.axes[1]])
	canvasView := canvasStyle.Render(m.canvas.String() + "\n" + labelStyle.Render(caption))

	var out strings.Builder
	out.WriteString(headerStyle.Render(strings.ToUpper(m.title)) + "\n")
	out.WriteString(m.status() + "\n\n")
	out.WriteString(labelStyle.Render("Time") + valueStyle.Render(fmt.Sprintf("%.3fs", s.Time)) + "\n")
	out.WriteString(labelStyle.Render("Tau") + valueStyle.Render(fmt.Sprintf("%.3fs", m.tau)) + "\n")
	out.WriteString(labelStyle.Render("Phase") + ProgressBar(1-s.Phase, 20) + valueStyle.Render(fmt.Sprintf(" %.4f", s.Phase)) + "\n")
	out.WriteString(labelStyle.Render("Goal dist") + valueStyle.Render(fmt.Sprintf("%.5f", metrics.Distance(s.Position, s.Goal))) + "\n")
	if m.err != nil {
		out.WriteString(labelStyle.Render("Error") + StatusFailed.Render(m.err.Error()) + "\n")
	}
	if n > 1 {
		chart := asciigraph.Plot(m.dists[:n], asciigraph.Height(5), asciigraph.Width(30), asciigraph.Caption("goal distance"))
		out.WriteString(graphStyle.Render(chart) + "\n")
		chart = asciigraph.Plot(m.phases[:n], asciigraph.Height(3), asciigraph.Width(30), asciigraph.Caption("phase"))
		out.WriteString(graphStyle.Render(chart) + "\n")
	}
	out.WriteString(helpStyle.Render("SP:Pause R:Restart Q:Quit\n↑↓:Tau [ ]:Scrub ?:Help"))

	view := lipgloss.JoinHorizontal(lipgloss.Top, canvasView, statsStyle.Render(out.String()))
	if m.showHelp {
		return `
╔══════════════════════════════════════╗
║          KEYBOARD SHORTCUTS          ║
╠══════════════════════════════════════╣
║  Space    - Pause/Resume             ║
║  R        - Restart the motion       ║
║  Up/K     - Slow down (tau +10%)     ║
║  Down/J   - Speed up (tau -10%)      ║
║  [ ]      - Scrub recorded ticks     ║
║  ?        - Toggle this help         ║
║  Q        - Quit                     ║
╚══════════════════════════════════════╝
` + "\n\n" + view
	}
	return view
}

// Ticks returns the number of recorded samples.
func (m Model) Ticks() int { return len(m.history) }

// Err returns the step error that stopped the motion, if any.
func (m Model) Err() error { return m.err }
