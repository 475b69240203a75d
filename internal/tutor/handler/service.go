package handler

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"

	"github.com/hypatia-tutor/hypatia/pkg/events"
)

// TutorServiceName is the fully-qualified name of the tutor service.
const TutorServiceName = "hypatia.tutor.v1.TutorService"

const (
	TutorServiceStartSessionProcedure = "/" + TutorServiceName + "/StartSession"
	TutorServiceSendMessageProcedure  = "/" + TutorServiceName + "/SendMessage"
	TutorServiceResetSessionProcedure = "/" + TutorServiceName + "/ResetSession"
	TutorServiceGetSessionProcedure   = "/" + TutorServiceName + "/GetSession"
	TutorServiceEndSessionProcedure   = "/" + TutorServiceName + "/EndSession"
	TutorServiceListLessonsProcedure  = "/" + TutorServiceName + "/ListLessons"
	TutorServiceWatchSessionProcedure = "/" + TutorServiceName + "/WatchSession"
)

// TutorServiceHandler is the server side of the tutor service.
type TutorServiceHandler interface {
	StartSession(context.Context, *connect.Request[StartSessionRequest]) (*connect.Response[StartSessionResponse], error)
	SendMessage(context.Context, *connect.Request[SendMessageRequest]) (*connect.Response[SendMessageResponse], error)
	ResetSession(context.Context, *connect.Request[ResetSessionRequest]) (*connect.Response[ResetSessionResponse], error)
	GetSession(context.Context, *connect.Request[GetSessionRequest]) (*connect.Response[GetSessionResponse], error)
	EndSession(context.Context, *connect.Request[EndSessionRequest]) (*connect.Response[EndSessionResponse], error)
	ListLessons(context.Context, *connect.Request[ListLessonsRequest]) (*connect.Response[ListLessonsResponse], error)
	WatchSession(context.Context, *connect.Request[WatchSessionRequest], *connect.ServerStream[events.Envelope]) error
}

// NewTutorServiceHandler builds an HTTP handler for the service. It returns
// the path to mount it on. Pass connectutil.DefaultOptions or
// connectutil.AuthenticatedOptions so messages use the JSON codec.
func NewTutorServiceHandler(svc TutorServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	routes := map[string]http.Handler{
		TutorServiceStartSessionProcedure: connect.NewUnaryHandler(TutorServiceStartSessionProcedure, svc.StartSession, opts...),
		TutorServiceSendMessageProcedure:  connect.NewUnaryHandler(TutorServiceSendMessageProcedure, svc.SendMessage, opts...),
		TutorServiceResetSessionProcedure: connect.NewUnaryHandler(TutorServiceResetSessionProcedure, svc.ResetSession, opts...),
		TutorServiceGetSessionProcedure:   connect.NewUnaryHandler(TutorServiceGetSessionProcedure, svc.GetSession, opts...),
		TutorServiceEndSessionProcedure:   connect.NewUnaryHandler(TutorServiceEndSessionProcedure, svc.EndSession, opts...),
		TutorServiceListLessonsProcedure:  connect.NewUnaryHandler(TutorServiceListLessonsProcedure, svc.ListLessons, opts...),
		TutorServiceWatchSessionProcedure: connect.NewServerStreamHandler(TutorServiceWatchSessionProcedure, svc.WatchSession, opts...),
	}

	prefix := "/" + TutorServiceName + "/"
	return prefix, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h, ok := routes[r.URL.Path]; ok {
			h.ServeHTTP(w, r)
			return
		}
		http.NotFound(w, r)
	})
}

// TutorServiceClient calls the tutor service.
type TutorServiceClient struct {
	startSession *connect.Client[StartSessionRequest, StartSessionResponse]
	sendMessage  *connect.Client[SendMessageRequest, SendMessageResponse]
	resetSession *connect.Client[ResetSessionRequest, ResetSessionResponse]
	getSession   *connect.Client[GetSessionRequest, GetSessionResponse]
	endSession   *connect.Client[EndSessionRequest, EndSessionResponse]
	listLessons  *connect.Client[ListLessonsRequest, ListLessonsResponse]
	watchSession *connect.Client[WatchSessionRequest, events.Envelope]
}

// NewTutorServiceClient creates a client for the service at baseURL. Pass
// connectutil.DefaultClientOptions so messages use the JSON codec.
func NewTutorServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *TutorServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	return &TutorServiceClient{
		startSession: connect.NewClient[StartSessionRequest, StartSessionResponse](httpClient, baseURL+TutorServiceStartSessionProcedure, opts...),
		sendMessage:  connect.NewClient[SendMessageRequest, SendMessageResponse](httpClient, baseURL+TutorServiceSendMessageProcedure, opts...),
		resetSession: connect.NewClient[ResetSessionRequest, ResetSessionResponse](httpClient, baseURL+TutorServiceResetSessionProcedure, opts...),
		getSession:   connect.NewClient[GetSessionRequest, GetSessionResponse](httpClient, baseURL+TutorServiceGetSessionProcedure, opts...),
		endSession:   connect.NewClient[EndSessionRequest, EndSessionResponse](httpClient, baseURL+TutorServiceEndSessionProcedure, opts...),
		listLessons:  connect.NewClient[ListLessonsRequest, ListLessonsResponse](httpClient, baseURL+TutorServiceListLessonsProcedure, opts...),
		watchSession: connect.NewClient[WatchSessionRequest, events.Envelope](httpClient, baseURL+TutorServiceWatchSessionProcedure, opts...),
	}
}

func (c *TutorServiceClient) StartSession(ctx context.Context, req *connect.Request[StartSessionRequest]) (*connect.Response[StartSessionResponse], error) {
	return c.startSession.CallUnary(ctx, req)
}

func (c *TutorServiceClient) SendMessage(ctx context.Context, req *connect.Request[SendMessageRequest]) (*connect.Response[SendMessageResponse], error) {
	return c.sendMessage.CallUnary(ctx, req)
}

func (c *TutorServiceClient) ResetSession(ctx context.Context, req *connect.Request[ResetSessionRequest]) (*connect.Response[ResetSessionResponse], error) {
	return c.resetSession.CallUnary(ctx, req)
}

func (c *TutorServiceClient) GetSession(ctx context.Context, req *connect.Request[GetSessionRequest]) (*connect.Response[GetSessionResponse], error) {
	return c.getSession.CallUnary(ctx, req)
}

func (c *TutorServiceClient) EndSession(ctx context.Context, req *connect.Request[EndSessionRequest]) (*connect.Response[EndSessionResponse], error) {
	return c.endSession.CallUnary(ctx, req)
}

func (c *TutorServiceClient) ListLessons(ctx context.Context, req *connect.Request[ListLessonsRequest]) (*connect.Response[ListLessonsResponse], error) {
	return c.listLessons.CallUnary(ctx, req)
}

func (c *TutorServiceClient) WatchSession(ctx context.Context, req *connect.Request[WatchSessionRequest]) (*connect.ServerStreamForClient[events.Envelope], error) {
	return c.watchSession.CallServerStream(ctx, req)
}
