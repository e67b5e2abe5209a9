package dig_container

import (
	"context"
	"fmt"
	"log"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/codexlms/codex/apps/api/echo"
	"github.com/codexlms/codex/core"
	"github.com/codexlms/codex/core/ai"
	"github.com/codexlms/codex/core/assistant"
	"github.com/codexlms/codex/core/billing"
	"github.com/codexlms/codex/core/course"
	"github.com/codexlms/codex/core/coursework"
	"github.com/codexlms/codex/core/enrollment"
	"github.com/codexlms/codex/core/friend"
	"github.com/codexlms/codex/core/message"
	"github.com/codexlms/codex/core/user"
	emailsvc "github.com/codexlms/codex/services/email"
	genaisvc "github.com/codexlms/codex/services/genai"
	"github.com/codexlms/codex/services/gradebook"
	jobsvc "github.com/codexlms/codex/services/jobs"
	logsvc "github.com/codexlms/codex/services/logger"
	paymentsvc "github.com/codexlms/codex/services/payment"
	"github.com/codexlms/codex/storage/database"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDB(conf *core.Config, loggerParam DBLoggerParam) core.DocumentStore {
	db, err := database.Open(context.Background(), conf)
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up %s store: %v", conf.Store.Backend, err), err)
	}
	return db
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newValidator() (*validator.Validate, ut.Translator) {
	validate, translator := core.NewValidator()
	user.InitValidators(validate, translator)
	return validate, translator
}

// newGenerator falls back to the mock, which answers nothing, when no API key is set.
func newGenerator(conf *core.Config, logger core.Logger) ai.Generator {
	if conf.GenAI.APIKey == "" {
		logger.Warn("genai.apiKey is not set: AI features are disabled")
		return ai.NewGeneratorMock()
	}
	gen, err := genaisvc.NewGenerator(context.Background(), conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up generator: %v", err), err)
	}
	return gen
}

func newGateway(conf *core.Config, logger core.Logger) billing.Gateway {
	if conf.Midtrans.ServerKey == "" {
		logger.Warn("midtrans.serverKey is not set: payments are simulated")
		return paymentsvc.NewGatewayMock()
	}
	return paymentsvc.NewMidtransGateway(conf)
}

func newMessageService(
	db core.DocumentStore,
	users *user.Service,
	enrollments *enrollment.Service,
	mailSvc core.EmailService,
	validate *validator.Validate,
) *message.Service {
	return message.NewService(db, users, enrollments, mailSvc, validate)
}

func newFriendService(db core.DocumentStore, users *user.Service) *friend.Service {
	return friend.NewService(db, users)
}

func newActions(
	courses *course.Service,
	work *coursework.Service,
	messages *message.Service,
	users *user.Service,
	flows *ai.Flows,
) assistant.Actions {
	return assistant.NewActions(assistant.ActionDeps{
		Courses:    courses,
		Coursework: work,
		Messages:   messages,
		Users:      users,
		Flows:      flows,
	})
}

func newResolver(flows *ai.Flows) *assistant.Resolver {
	return assistant.NewResolver(assistant.DefaultRules, flows)
}

func newAssistant(
	conf *core.Config,
	sessions *assistant.SessionStore,
	resolver *assistant.Resolver,
	actions assistant.Actions,
	snapshots *assistant.StoreSnapshot,
	billingSvc *billing.Service,
	logger core.Logger,
) *assistant.Assistant {
	return assistant.New(conf, sessions, resolver, actions, snapshots, billingSvc, logger)
}

func newGradebook(work *coursework.Service, enrollments *enrollment.Service, users *user.Service) *gradebook.Exporter {
	return gradebook.NewExporter(work, enrollments, users)
}

func newScheduler(logger core.Logger, billingSvc *billing.Service, sessions *assistant.SessionStore) (*jobsvc.Scheduler, error) {
	return jobsvc.NewScheduler(logger, jobsvc.DefaultJobs(billingSvc, sessions)...)
}

type serverParams struct {
	dig.In

	Conf          *core.Config
	Logger        core.Logger
	Store         core.DocumentStore
	Validate      *validator.Validate
	Translator    ut.Translator
	UserSvc       *user.Service
	CourseSvc     *course.Service
	CourseworkSvc *coursework.Service
	EnrollmentSvc *enrollment.Service
	FriendSvc     *friend.Service
	MessageSvc    *message.Service
	BillingSvc    *billing.Service
	Flows         *ai.Flows
	Assistant     *assistant.Assistant
	Sessions      *assistant.SessionStore
	Gradebook     *gradebook.Exporter
}

func newServer(p serverParams) *echoapi.Server {
	return echoapi.NewServer(echoapi.ServerDeps{
		Conf:          p.Conf,
		Logger:        p.Logger,
		Store:         p.Store,
		Validate:      p.Validate,
		Translator:    p.Translator,
		UserSvc:       p.UserSvc,
		CourseSvc:     p.CourseSvc,
		CourseworkSvc: p.CourseworkSvc,
		EnrollmentSvc: p.EnrollmentSvc,
		FriendSvc:     p.FriendSvc,
		MessageSvc:    p.MessageSvc,
		BillingSvc:    p.BillingSvc,
		Flows:         p.Flows,
		Assistant:     p.Assistant,
		Sessions:      p.Sessions,
		Gradebook:     p.Gradebook,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newDB))
	must(c.Provide(newEmailService))
	must(c.Provide(newValidator))
	must(c.Provide(user.NewService))
	must(c.Provide(course.NewService))
	must(c.Provide(coursework.NewService))
	must(c.Provide(enrollment.NewService))
	must(c.Provide(newFriendService))
	must(c.Provide(newMessageService))
	must(c.Provide(newGateway))
	must(c.Provide(billing.NewService))
	must(c.Provide(newGenerator))
	must(c.Provide(ai.NewFlows))
	must(c.Provide(assistant.NewSessionStore))
	must(c.Provide(assistant.NewStoreSnapshot))
	must(c.Provide(newActions))
	must(c.Provide(newResolver))
	must(c.Provide(newAssistant))
	must(c.Provide(newGradebook))
	must(c.Provide(newScheduler))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
