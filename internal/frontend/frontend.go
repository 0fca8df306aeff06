// Package frontend is the windowed front-end: an ebiten.Game that pushes
// key events into a Console's inbox and blits its published framebuffer
// every Draw call, following the teacher's ui.App structure (a struct
// wrapping the machine, Update polling ebiten's key state into button
// presses, Draw copying the emulator's framebuffer into an ebiten.Image)
// generalized from a single-goroutine machine reference to spec.md §5's
// cross-thread Console: Update/Draw only ever read Console.Output and
// write Console.Inbox, never reach into Console's own fields.
package frontend

import (
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"github.com/aldenhall/pocketgba/internal/emu"
	"github.com/aldenhall/pocketgba/internal/ppu"
)

// ScanlineCallback matches spec.md §6's optional per-scanline video sink,
// offered for hosts that want to render incrementally instead of
// waiting for a complete frame (e.g. a lightweight capture tool); the
// windowed App below does not use it, relying on the whole-frame
// Framebuffer instead.
type ScanlineCallback func(y int, pixels []uint16)

// keyBinding pairs an ebiten key with the GBA button it drives, mirrored
// after the teacher's Update() chain of `if ebiten.IsKeyPressed(...)`
// checks feeding an emu.Buttons struct, generalized to the GBA's ten
// buttons and to pushing KEY messages instead of setting a field.
var keyBindings = [...]struct {
	key ebiten.Key
	btn emu.Key
}{
	{ebiten.KeyZ, emu.KeyA},
	{ebiten.KeyX, emu.KeyB},
	{ebiten.KeyBackspace, emu.KeySelect},
	{ebiten.KeyEnter, emu.KeyStart},
	{ebiten.KeyArrowRight, emu.KeyRight},
	{ebiten.KeyArrowLeft, emu.KeyLeft},
	{ebiten.KeyArrowUp, emu.KeyUp},
	{ebiten.KeyArrowDown, emu.KeyDown},
	{ebiten.KeyA, emu.KeyR},
	{ebiten.KeyS, emu.KeyL},
}

// App is the ebiten.Game implementation wired to one Console.
type App struct {
	console *Console
	tex     *ebiten.Image
	scale   int

	// held tracks which buttons are currently pressed so Update only
	// sends a KEY message on an actual transition, not every tick.
	held uint16
}

// Console is the narrow surface App needs from emu.Console: push a
// message, read the published frame. Declared locally (rather than
// importing *emu.Console directly into every method signature) so a
// test can supply a fake without constructing a real machine.
type Console interface {
	Push(m emu.Message)
	CopyFrame(dst []uint16)
}

// consoleAdapter adapts *emu.Console to the Console interface above.
type consoleAdapter struct{ c *emu.Console }

func (a consoleAdapter) Push(m emu.Message)       { a.c.Inbox.Push(m) }
func (a consoleAdapter) CopyFrame(dst []uint16) { a.c.Output.Framebuffer.CopyInto(dst) }

// NewApp wraps a *emu.Console for ebiten.RunGame; scale multiplies the
// GBA's native 240x160 for the window size ebiten reports through Layout.
func NewApp(c *emu.Console, scale int) *App {
	if scale < 1 {
		scale = 1
	}
	return &App{console: consoleAdapter{c: c}, scale: scale}
}

// Run starts the windowed loop; blocks until the window closes.
func (a *App) Run(title string) error {
	ebiten.SetWindowTitle(title)
	ebiten.SetWindowSize(ppu.ScreenWidth*a.scale, ppu.ScreenHeight*a.scale)
	return ebiten.RunGame(a)
}

func (a *App) Update() error {
	for _, kb := range keyBindings {
		bit := uint16(1) << uint(kb.btn)
		pressed := ebiten.IsKeyPressed(kb.key)
		wasPressed := a.held&bit != 0
		if pressed == wasPressed {
			continue
		}
		if pressed {
			a.held |= bit
		} else {
			a.held &^= bit
		}
		a.console.Push(emu.Message{Kind: emu.MsgKey, Key: kb.btn, Pressed: pressed})
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyP) {
		a.console.Push(emu.Message{Kind: emu.MsgExit})
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyO) {
		a.console.Push(emu.Message{Kind: emu.MsgRun})
	}
	return nil
}

func (a *App) Draw(screen *ebiten.Image) {
	if a.tex == nil {
		a.tex = ebiten.NewImage(ppu.ScreenWidth, ppu.ScreenHeight)
	}
	var frame [ppu.ScreenWidth * ppu.ScreenHeight]uint16
	a.console.CopyFrame(frame[:])

	var rgba [ppu.ScreenWidth * ppu.ScreenHeight * 4]byte
	for i, px := range frame {
		o := i * 4
		rgba[o], rgba[o+1], rgba[o+2], rgba[o+3] = ppu.RGBA8888(px)
	}
	a.tex.WritePixels(rgba[:])
	screen.DrawImage(a.tex, nil)
}

func (a *App) Layout(outsideWidth, outsideHeight int) (int, int) {
	return ppu.ScreenWidth, ppu.ScreenHeight
}
