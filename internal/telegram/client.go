package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"clipbot/internal/metrics"
	"clipbot/internal/transport"
)

// Client is a minimal Bot API client implementing the transport
// boundary: outbound messaging, status edits, and media transfer.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New creates a client for the given Bot API base URL and token.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		// Long polling and large uploads manage their own deadlines
		// through the request context.
		http: &http.Client{},
	}
}

type apiResponse struct {
	Ok          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
}

// call POSTs a form-encoded Bot API method and returns the raw result.
func (c *Client) call(ctx context.Context, method string, params url.Values) (json.RawMessage, error) {
	endpoint := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	return decodeResponse(method, resp.Body)
}

func decodeResponse(method string, body io.Reader) (json.RawMessage, error) {
	var ar apiResponse
	if err := json.NewDecoder(body).Decode(&ar); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", method, err)
	}
	if !ar.Ok {
		return nil, &apiError{Method: method, Description: ar.Description}
	}
	return ar.Result, nil
}

// apiError is a Bot API level failure (ok=false).
type apiError struct {
	Method      string
	Description string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%s: %s", e.Method, e.Description)
}

// SendText sends a plain text message.
func (c *Client) SendText(ctx context.Context, chatID int64, text string) error {
	params := url.Values{}
	params.Set("chat_id", strconv.FormatInt(chatID, 10))
	params.Set("text", text)
	_, err := c.call(ctx, "sendMessage", params)
	return err
}

// SendButtons sends a text message with an inline keyboard.
func (c *Client) SendButtons(ctx context.Context, chatID int64, text string, rows [][]transport.Button) error {
	keyboard := make([][]inlineButton, 0, len(rows))
	for _, row := range rows {
		r := make([]inlineButton, 0, len(row))
		for _, b := range row {
			r = append(r, inlineButton{Text: b.Label, CallbackData: b.Payload})
		}
		keyboard = append(keyboard, r)
	}

	markup, err := json.Marshal(map[string]interface{}{"inline_keyboard": keyboard})
	if err != nil {
		return err
	}

	params := url.Values{}
	params.Set("chat_id", strconv.FormatInt(chatID, 10))
	params.Set("text", text)
	params.Set("reply_markup", string(markup))
	_, err = c.call(ctx, "sendMessage", params)
	return err
}

type inlineButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

// SendStatus sends a message and returns its id for later edits.
func (c *Client) SendStatus(ctx context.Context, chatID int64, text string) (int64, error) {
	params := url.Values{}
	params.Set("chat_id", strconv.FormatInt(chatID, 10))
	params.Set("text", text)

	result, err := c.call(ctx, "sendMessage", params)
	if err != nil {
		return 0, err
	}

	var msg message
	if err := json.Unmarshal(result, &msg); err != nil {
		return 0, fmt.Errorf("sendMessage: decode result: %w", err)
	}
	return msg.MessageID, nil
}

// EditStatus rewrites a previous status message. The API rejects edits
// that change nothing; that case is swallowed as a successful no-op.
func (c *Client) EditStatus(ctx context.Context, chatID, messageID int64, text string) error {
	params := url.Values{}
	params.Set("chat_id", strconv.FormatInt(chatID, 10))
	params.Set("message_id", strconv.FormatInt(messageID, 10))
	params.Set("text", text)

	_, err := c.call(ctx, "editMessageText", params)
	if isNotModified(err) {
		return nil
	}
	return err
}

func isNotModified(err error) bool {
	ae, ok := err.(*apiError)
	return ok && strings.Contains(ae.Description, "message is not modified")
}

// SendVideo uploads a local file as a video message via multipart POST,
// reporting upload progress when a channel is supplied.
func (c *Client) SendVideo(ctx context.Context, chatID int64, path, fileName, caption string, progress chan<- transport.Progress) error {
	if progress != nil {
		defer close(progress)
	}

	file, err := os.Open(path)
	if err != nil {
		return &transport.TransferError{Direction: "upload", Ref: path, Err: err}
	}
	defer file.Close()

	fi, err := file.Stat()
	if err != nil {
		return &transport.TransferError{Direction: "upload", Ref: path, Err: err}
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		err := writeVideoForm(mw, chatID, fileName, caption, file, fi.Size(), progress)
		mw.Close()
		pw.CloseWithError(err)
	}()

	endpoint := fmt.Sprintf("%s/bot%s/sendVideo", c.baseURL, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, pr)
	if err != nil {
		return &transport.TransferError{Direction: "upload", Ref: path, Err: err}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.TransfersTotal.WithLabelValues("upload", "failed").Inc()
		return &transport.TransferError{Direction: "upload", Ref: path, Err: err}
	}
	defer resp.Body.Close()

	if _, err := decodeResponse("sendVideo", resp.Body); err != nil {
		metrics.TransfersTotal.WithLabelValues("upload", "failed").Inc()
		return &transport.TransferError{Direction: "upload", Ref: path, Err: err}
	}

	metrics.TransfersTotal.WithLabelValues("upload", "succeeded").Inc()
	metrics.TransferBytes.WithLabelValues("upload").Add(float64(fi.Size()))
	return nil
}

func writeVideoForm(mw *multipart.Writer, chatID int64, fileName, caption string, file io.Reader, size int64, progress chan<- transport.Progress) error {
	if err := mw.WriteField("chat_id", strconv.FormatInt(chatID, 10)); err != nil {
		return err
	}
	if caption != "" {
		if err := mw.WriteField("caption", caption); err != nil {
			return err
		}
	}

	part, err := mw.CreateFormFile("video", fileName)
	if err != nil {
		return err
	}

	src := io.Reader(file)
	if progress != nil {
		src = &progressReader{r: file, total: size, progress: progress}
	}
	_, err = io.Copy(part, src)
	return err
}

// answerCallback acknowledges a button press so the client stops
// showing a spinner. Best effort.
func (c *Client) answerCallback(ctx context.Context, callbackID string) {
	params := url.Values{}
	params.Set("callback_query_id", callbackID)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, _ = c.call(ctx, "answerCallbackQuery", params)
}
