package channel

import (
	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"
)

type lineEventKind int

const (
	lineEventOther lineEventKind = iota
	lineEventMessage
	lineEventJoin
)

type lineSourceKind int

const (
	lineSourceUnknown lineSourceKind = iota
	lineSourceGroup
	lineSourceRoom
	lineSourceUser
)

type lineContentKind int

const (
	lineContentUnknown lineContentKind = iota
	lineContentText
	lineContentImage
	lineContentAudio
	lineContentVideo
	lineContentFile
	lineContentLocation
	lineContentSticker
)

func (k lineContentKind) String() string {
	switch k {
	case lineContentText:
		return "text"
	case lineContentImage:
		return "image"
	case lineContentAudio:
		return "audio"
	case lineContentVideo:
		return "video"
	case lineContentFile:
		return "file"
	case lineContentLocation:
		return "location"
	case lineContentSticker:
		return "sticker"
	default:
		return "unknown"
	}
}

type lineProviderKind int

const (
	lineProviderUnknown lineProviderKind = iota
	lineProviderLine
	lineProviderExternal
)

// lineEvent is the closed set of webhook events the listener understands.
// The SDK's open interface hierarchy is mapped into it once, at the edge.
type lineEvent struct {
	kind       lineEventKind
	id         string
	typ        string
	replyToken string
	source     lineSource
	content    lineContent
}

type lineSource struct {
	kind    lineSourceKind
	groupID string
	roomID  string
	userID  string
}

type lineContent struct {
	kind     lineContentKind
	id       string
	text     string
	fileName string
	provider lineProvider
}

// lineProvider says where the binary content of a media message lives.
type lineProvider struct {
	kind        lineProviderKind
	originalURL string
	previewURL  string
}

func toLineEvent(e webhook.EventInterface) lineEvent {
	if e == nil {
		return lineEvent{}
	}
	ev := lineEvent{typ: e.GetType()}
	switch e := e.(type) {
	case webhook.MessageEvent:
		ev.kind = lineEventMessage
		ev.id = e.WebhookEventId
		ev.replyToken = e.ReplyToken
		ev.source = toLineSource(e.Source)
		ev.content = toLineContent(e.Message)
	case webhook.JoinEvent:
		ev.kind = lineEventJoin
		ev.id = e.WebhookEventId
		ev.replyToken = e.ReplyToken
		ev.source = toLineSource(e.Source)
	}
	return ev
}

func toLineSource(s webhook.SourceInterface) lineSource {
	switch s := s.(type) {
	case webhook.GroupSource:
		return lineSource{kind: lineSourceGroup, groupID: s.GroupId, userID: s.UserId}
	case webhook.RoomSource:
		return lineSource{kind: lineSourceRoom, roomID: s.RoomId, userID: s.UserId}
	case webhook.UserSource:
		return lineSource{kind: lineSourceUser, userID: s.UserId}
	default:
		return lineSource{}
	}
}

func toLineContent(m webhook.MessageContentInterface) lineContent {
	switch m := m.(type) {
	case webhook.TextMessageContent:
		return lineContent{kind: lineContentText, id: m.Id, text: m.Text}
	case webhook.ImageMessageContent:
		return lineContent{kind: lineContentImage, id: m.Id, provider: toLineProvider(m.ContentProvider)}
	case webhook.AudioMessageContent:
		return lineContent{kind: lineContentAudio, id: m.Id, provider: toLineProvider(m.ContentProvider)}
	case webhook.VideoMessageContent:
		return lineContent{kind: lineContentVideo, id: m.Id, provider: toLineProvider(m.ContentProvider)}
	case webhook.FileMessageContent:
		return lineContent{kind: lineContentFile, id: m.Id, fileName: m.FileName}
	case webhook.LocationMessageContent:
		return lineContent{kind: lineContentLocation, id: m.Id}
	case webhook.StickerMessageContent:
		return lineContent{kind: lineContentSticker, id: m.Id}
	default:
		return lineContent{}
	}
}

func toLineProvider(p *webhook.ContentProvider) lineProvider {
	if p == nil {
		return lineProvider{}
	}
	out := lineProvider{originalURL: p.OriginalContentUrl, previewURL: p.PreviewImageUrl}
	switch string(p.Type) {
	case "line":
		out.kind = lineProviderLine
	case "external":
		out.kind = lineProviderExternal
	}
	return out
}
