// Command-line chat client for the codemate relay
package main

import (
	"bufio"
	"codemate/codemate/config"
	"codemate/codemate/middlewares"
	"codemate/codemate/prompts"
	"codemate/codemate/services/completion"
	"codemate/codemate/session"
	"codemate/codemate/utils/apperr"
	"codemate/codemate/utils/color"
	"codemate/codemate/utils/logging"
	"codemate/codemate/utils/types"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// sendTimeout bounds every send through its context.
const sendTimeout = 90 * time.Second

type cli struct {
	session   *session.Session
	client    *completion.Client
	streaming bool
	out       io.Writer
}

func main() {
	cfg := config.LoadConfig()
	logging.InitLogger(cfg.LogDir)
	defer logging.Sync()

	profile, err := prompts.Load(cfg.PromptFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, color.ColorError("prompt profile: "+err.Error()))
		os.Exit(1)
	}

	token := cfg.RelayToken
	if token == "" && cfg.JWTSecret != "" {
		token, err = middlewares.IssueToken(cfg.JWTSecret, "codemate-cli", 12*time.Hour)
		if err != nil {
			fmt.Fprintln(os.Stderr, color.ColorError("token: "+err.Error()))
			os.Exit(1)
		}
	}

	c := &cli{
		client: completion.NewClient(cfg.RelayURL, token, nil),
		out:    os.Stdout,
	}
	c.session = session.New(session.SenderFunc(c.send), profile.Greeting)
	logging.AppLogger.Info("codemate cli started", zap.String("relay", cfg.RelayURL))

	fmt.Fprintln(c.out, color.ColorInfo("Connected to "+cfg.RelayURL))
	fmt.Fprintln(c.out, "Commands: /attach <path>, /detach <n>, /files, /history, /stream on|off, exit")
	fmt.Fprintln(c.out)
	for _, m := range c.session.Messages() {
		c.printMessage(m)
	}

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for {
		fmt.Fprint(c.out, color.ColorPrompt("codemate> "))
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "exit" || line == "quit" {
			fmt.Fprintln(c.out, "Goodbye!")
			break
		}
		c.handle(line)
	}
}

// send is the session's transport: plain request/response, or the socket
// with chunks echoed as they arrive.
func (c *cli) send(ctx context.Context, history []types.Message, attachments []types.FileDescriptor) (string, error) {
	if !c.streaming {
		return c.client.Send(ctx, history, attachments)
	}
	fmt.Fprint(c.out, color.ColorAssistant("codemate: "))
	out, err := c.client.Stream(ctx, history, attachments, func(chunk string) {
		fmt.Fprint(c.out, chunk)
	})
	fmt.Fprintln(c.out)
	return out, err
}

func (c *cli) handle(line string) {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/attach":
		c.attach(arg)
	case "/detach":
		n, err := strconv.Atoi(arg)
		if err != nil {
			fmt.Fprintln(c.out, color.ColorWarning("usage: /detach <n>"))
			return
		}
		if err := c.session.Detach(n - 1); err != nil {
			fmt.Fprintln(c.out, color.ColorWarning(err.Error()))
			return
		}
		c.printFiles()
	case "/files":
		c.printFiles()
	case "/history":
		for _, m := range c.session.Messages() {
			c.printMessage(m)
		}
	case "/stream":
		switch arg {
		case "on":
			c.streaming = true
		case "off":
			c.streaming = false
		default:
			fmt.Fprintln(c.out, color.ColorWarning("usage: /stream on|off"))
			return
		}
		fmt.Fprintln(c.out, color.ColorInfo("streaming "+arg))
	default:
		if strings.HasPrefix(cmd, "/") {
			fmt.Fprintln(c.out, color.ColorWarning("unknown command "+cmd))
			return
		}
		c.submit(line)
	}
}

func (c *cli) submit(text string) {
	c.session.SetDraft(text)
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	reply, err := c.session.TrySend(ctx)
	if err != nil {
		fmt.Fprintln(c.out, color.ColorError(apperr.Display(err)))
		if s := apperr.Suggestion(apperr.KindOf(err)); s != "" {
			fmt.Fprintln(c.out, color.ColorMuted(s))
		}
		return
	}
	if !c.streaming {
		c.printMessage(reply)
	}
}

func (c *cli) attach(path string) {
	if path == "" {
		fmt.Fprintln(c.out, color.ColorWarning("usage: /attach <path>"))
		return
	}
	fd, err := describeFile(path)
	if err != nil {
		fmt.Fprintln(c.out, color.ColorWarning(err.Error()))
		return
	}
	c.session.Attach(fd)
	fmt.Fprintln(c.out, color.ColorInfo(fmt.Sprintf("attached %s (%s)", fd.Name, types.FormatSize(fd.Size))))
}

// describeFile builds the metadata sent for path. Contents never leave the
// machine; the file is only opened to sniff its type when the extension is
// not registered.
func describeFile(path string) (types.FileDescriptor, error) {
	info, err := os.Stat(path)
	if err != nil {
		return types.FileDescriptor{}, fmt.Errorf("cannot attach %s: %w", path, err)
	}
	if info.IsDir() {
		return types.FileDescriptor{}, fmt.Errorf("cannot attach %s: is a directory", path)
	}

	name := filepath.Base(path)
	mimeType := mime.TypeByExtension(filepath.Ext(name))
	if mimeType == "" {
		mimeType = sniff(path)
	}
	if mt, _, err := mime.ParseMediaType(mimeType); err == nil {
		mimeType = mt
	}
	if !types.IsAcceptedAttachment(name, mimeType) {
		return types.FileDescriptor{}, fmt.Errorf("cannot attach %s: only images and source or text documents are accepted", name)
	}
	return types.FileDescriptor{Name: name, Size: info.Size(), Type: mimeType}, nil
}

func sniff(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()
	buf := make([]byte, 512)
	n, _ := f.Read(buf)
	if n == 0 {
		return ""
	}
	return http.DetectContentType(buf[:n])
}

func (c *cli) printFiles() {
	files := c.session.Attachments()
	if len(files) == 0 {
		fmt.Fprintln(c.out, color.ColorMuted("no files attached"))
		return
	}
	for i, f := range files {
		fmt.Fprintf(c.out, "  %d. %s  %s  %s\n", i+1, f.Name, types.FormatSize(f.Size), color.ColorMuted(f.MIME()))
	}
}

func (c *cli) printMessage(m types.Message) {
	stamp := color.ColorMuted(m.CreatedAt.Format("15:04"))
	who := color.ColorAssistant("codemate")
	if m.Role == types.RoleUser {
		who = color.ColorUser("you")
	}
	fmt.Fprintf(c.out, "%s %s: %s\n", stamp, who, m.Content)
	for _, f := range m.Attachments {
		fmt.Fprintf(c.out, "      + %s (%s)\n", f.Name, types.FormatSize(f.Size))
	}
}
