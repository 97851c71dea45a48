package course_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/avoronin/sprintbot/internal/config"
	"github.com/avoronin/sprintbot/internal/course"
	"github.com/avoronin/sprintbot/internal/database"
)

// fakeStore is an in-memory Store with the same semantics as the SQL layer.
type fakeStore struct {
	mu           sync.Mutex
	participants map[int64]*database.Participant
	clock        *database.CourseClock
	tasks        map[int]*database.Task
	finals       map[int]*database.FinalMessage
	submissions  map[string]*database.Submission
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		participants: make(map[int64]*database.Participant),
		tasks:        make(map[int]*database.Task),
		finals:       make(map[int]*database.FinalMessage),
		submissions:  make(map[string]*database.Submission),
	}
}

func (s *fakeStore) addParticipant(p *database.Participant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.participants[p.TelegramID] = &cp
}

func (s *fakeStore) addTask(day int, assignment string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[day] = &database.Task{Day: day, Assignment: assignment}
}

func (s *fakeStore) participant(t *testing.T, id int64) database.Participant {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[id]
	if !ok {
		t.Fatalf("participant %d not found", id)
	}
	return *p
}

func (s *fakeStore) Ping(context.Context) error { return nil }

func (s *fakeStore) GetParticipant(_ context.Context, telegramID int64) (*database.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[telegramID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (s *fakeStore) GetParticipantByEmail(_ context.Context, email string) (*database.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.participants {
		if p.Email == email {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) CreateParticipant(_ context.Context, p *database.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.participants[p.TelegramID] = &cp
	return nil
}

func (s *fakeStore) SaveParticipant(_ context.Context, p *database.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.participants[p.TelegramID] = &cp
	return nil
}

func (s *fakeStore) EmailAllowed(context.Context, string) (bool, error) { return true, nil }

func (s *fakeStore) UpdateRegistrationState(_ context.Context, telegramID int64, state database.RegistrationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.participants[telegramID].RegistrationState = state
	return nil
}

func (s *fakeStore) ClaimEmail(_ context.Context, telegramID int64, email, firstName, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.participants[telegramID]
	p.Email = email
	p.FirstName = firstName
	p.RegistrationState = database.RegistrationWaitingChannel
	return nil
}

func (s *fakeStore) LinkChannel(_ context.Context, telegramID int64, channelLink string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.participants[telegramID]
	p.ChannelLink.String = channelLink
	p.ChannelLink.Valid = true
	p.RegistrationState = database.RegistrationDone
	return nil
}

func (s *fakeStore) SetCourseStage(_ context.Context, telegramID int64, cs database.CourseStage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.participants[telegramID].SetCourse(cs)
	return nil
}

func (s *fakeStore) AssignTask(_ context.Context, telegramID int64, day int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.participants[telegramID]
	p.CurrentTask = day
	p.SetCourse(database.InProgress())
	return nil
}

func (s *fakeStore) AdmitLimited(_ context.Context, telegramID int64, day int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.participants[telegramID]
	p.CurrentTask = day
	p.SetCourse(database.CourseStage{Stage: database.StageLimited, Day: day})
	return nil
}

func (s *fakeStore) AdvanceTask(_ context.Context, telegramID int64, from, to int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[telegramID]
	if !ok || p.CurrentTask != from {
		return false, nil
	}
	p.CurrentTask = to
	return true, nil
}

func (s *fakeStore) AddPenalty(_ context.Context, telegramID int64, threshold int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.participants[telegramID]
	p.Penalties++
	if p.Penalties >= threshold {
		p.SetCourse(database.CourseStage{Stage: database.StageExcluded})
	}
	return p.Penalties, nil
}

func (s *fakeStore) MarkBlocked(_ context.Context, telegramID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.participants[telegramID].IsBlocked = true
	return nil
}

func (s *fakeStore) MarkFinalMessageSent(_ context.Context, telegramID int64, number int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.participants[telegramID]
	switch number {
	case 1:
		p.FinalMessage1Sent = true
	case 2:
		p.FinalMessage2Sent = true
	case 3:
		p.FinalMessage3Sent = true
	}
	return nil
}

func (s *fakeStore) listWhere(keep func(*database.Participant) bool) []*database.Participant {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*database.Participant
	for _, p := range s.participants {
		if keep(p) {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TelegramID < out[j].TelegramID })
	return out
}

func (s *fakeStore) ListEnrolled(context.Context) ([]*database.Participant, error) {
	return s.listWhere(func(p *database.Participant) bool {
		return p.Enrolled() && !p.IsBlocked
	}), nil
}

func (s *fakeStore) ListByCurrentTask(_ context.Context, day int) ([]*database.Participant, error) {
	return s.listWhere(func(p *database.Participant) bool {
		if p.IsBlocked || p.CurrentTask != day {
			return false
		}
		return p.CourseStage == database.StageInProgress || p.CourseStage == database.StageLimited
	}), nil
}

func (s *fakeStore) ListCompleted(context.Context) ([]*database.Participant, error) {
	return s.listWhere(func(p *database.Participant) bool {
		return p.CourseStage == database.StageCompleted && !p.IsBlocked
	}), nil
}

func (s *fakeStore) ListForFinalMessage(_ context.Context, number, minTask int) ([]*database.Participant, error) {
	return s.listWhere(func(p *database.Participant) bool {
		if p.CurrentTask < minTask || p.IsBlocked {
			return false
		}
		switch number {
		case 1:
			return !p.FinalMessage1Sent
		case 2:
			return !p.FinalMessage2Sent
		default:
			return !p.FinalMessage3Sent
		}
	}), nil
}

func (s *fakeStore) EnrollRegistered(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, p := range s.participants {
		if p.RegistrationState == database.RegistrationDone && p.CourseStage == database.StageNotStarted {
			p.SetCourse(database.InProgress())
			p.CurrentTask = 0
			p.Penalties = 0
			count++
		}
	}
	return count, nil
}

func (s *fakeStore) ResetCourseData(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, p := range s.participants {
		if p.CourseStage != database.StageNotStarted {
			p.SetCourse(database.CourseStage{Stage: database.StageNotStarted})
			p.CurrentTask = 0
			p.Penalties = 0
			p.FinalMessage1Sent = false
			p.FinalMessage2Sent = false
			p.FinalMessage3Sent = false
			count++
		}
	}
	s.submissions = make(map[string]*database.Submission)
	return count, nil
}

func (s *fakeStore) GetCourseClock(context.Context) (*database.CourseClock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clock == nil {
		return nil, nil
	}
	cp := *s.clock
	return &cp, nil
}

func (s *fakeStore) EnsureCourseClock(context.Context) (*database.CourseClock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clock == nil {
		s.clock = &database.CourseClock{ID: 1}
	}
	cp := *s.clock
	return &cp, nil
}

func (s *fakeStore) SaveCourseClock(_ context.Context, isActive bool, currentDay int, startDate *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clock == nil {
		return errors.New("course clock missing")
	}
	s.clock.IsActive = isActive
	s.clock.CurrentDay = currentDay
	if startDate != nil {
		s.clock.StartDate.Time = *startDate
		s.clock.StartDate.Valid = true
	} else {
		s.clock.StartDate.Valid = false
	}
	return nil
}

func (s *fakeStore) GetTaskByDay(_ context.Context, day int) (*database.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[day]
	if !ok {
		return nil, nil
	}
	cp := *task
	return &cp, nil
}

func (s *fakeStore) GetFinalMessage(_ context.Context, number int) (*database.FinalMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.finals[number]
	if !ok {
		return nil, nil
	}
	cp := *msg
	return &cp, nil
}

func (s *fakeStore) RecordSubmission(_ context.Context, telegramID int64, day int, link string, next database.CourseStage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := fmt.Sprintf("%d/%d", telegramID, day)
	s.submissions[key] = &database.Submission{TelegramID: telegramID, Day: day, Link: link}
	p := s.participants[telegramID]
	p.CurrentTask = day + 1
	p.SetCourse(next)
	p.LastTaskCompletedAt.Time = time.Now().UTC()
	p.LastTaskCompletedAt.Valid = true
	return nil
}

func (s *fakeStore) GetSubmission(_ context.Context, telegramID int64, day int) (*database.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.submissions[fmt.Sprintf("%d/%d", telegramID, day)]
	if !ok {
		return nil, nil
	}
	cp := *sub
	return &cp, nil
}

func (s *fakeStore) ListCohort(context.Context, string) ([]int64, error) { return nil, nil }

// fakeMessenger records sends and can fail selected chats.
type fakeMessenger struct {
	mu        sync.Mutex
	sent      map[int64][]string
	failWith  map[int64]error
	banned    []int64
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{
		sent:     make(map[int64][]string),
		failWith: make(map[int64]error),
	}
}

func (m *fakeMessenger) SendMessage(_ context.Context, chatID int64, text string, _ course.SendOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.failWith[chatID]; ok {
		return err
	}
	m.sent[chatID] = append(m.sent[chatID], text)
	return nil
}

func (m *fakeMessenger) BanChatMember(_ context.Context, _, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.banned = append(m.banned, userID)
	return nil
}

func (m *fakeMessenger) sentTo(chatID int64) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.sent[chatID]...)
}

type fakeReporter struct {
	mu       sync.Mutex
	events   []string
	tallies  map[int][]int64
	reported int
}

func (r *fakeReporter) BroadcastReport(_ context.Context, _, _, _ int) {}
func (r *fakeReporter) ReminderReport(_ context.Context, _, _, _, _ int) {}
func (r *fakeReporter) CompletionReport(_ context.Context, finishers int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reported = finishers
}

func (r *fakeReporter) PenaltyReport(_ context.Context, _ int, tallies map[int][]int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tallies = tallies
}

func (r *fakeReporter) Event(_ context.Context, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, text)
}

func testConfig() *config.Config {
	return &config.Config{
		Telegram: config.TelegramConfig{CourseChatID: -100500},
		Course: config.CourseConfig{
			Days:         10,
			PenaltyLimit: 3,
		},
	}
}

func newTestService(t *testing.T) (*course.Service, *fakeStore, *fakeMessenger, *fakeReporter) {
	t.Helper()

	store := newFakeStore()
	msg := newFakeMessenger()
	rep := &fakeReporter{}
	svc := course.NewService(store, msg, rep, testConfig(), nil)
	if err := svc.EnsureClock(context.Background()); err != nil {
		t.Fatalf("EnsureClock: %v", err)
	}
	return svc, store, msg, rep
}

func registered(id int64) *database.Participant {
	return &database.Participant{
		TelegramID:        id,
		Email:             fmt.Sprintf("user%d@example.com", id),
		FirstName:         fmt.Sprintf("User%d", id),
		RegistrationState: database.RegistrationDone,
		CourseStage:       database.StageNotStarted,
	}
}

func enrolled(id int64, currentTask int) *database.Participant {
	p := registered(id)
	p.CourseStage = database.StageInProgress
	p.CurrentTask = currentTask
	return p
}

func TestStart(t *testing.T) {
	t.Parallel()

	svc, store, _, _ := newTestService(t)
	ctx := context.Background()

	store.addParticipant(registered(1))
	store.addParticipant(registered(2))
	halfway := registered(3)
	halfway.RegistrationState = database.RegistrationWaitingChannel
	store.addParticipant(halfway)

	result, err := svc.Start(ctx)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if result.Enrolled != 2 {
		t.Errorf("enrolled = %d, want 2", result.Enrolled)
	}

	clock, _ := store.GetCourseClock(ctx)
	if !clock.IsActive || clock.CurrentDay != 0 {
		t.Errorf("clock = active %v day %d, want active day 0", clock.IsActive, clock.CurrentDay)
	}
	if !clock.StartDate.Valid {
		t.Error("start date not recorded")
	}

	if p := store.participant(t, 3); p.CourseStage != database.StageNotStarted {
		t.Errorf("unregistered participant enrolled: stage %s", p.CourseStage)
	}

	// A second start must be refused while the course is running.
	if _, err := svc.Start(ctx); !errors.Is(err, course.ErrCourseActive) {
		t.Errorf("second Start error = %v, want ErrCourseActive", err)
	}
}

func TestStopRequiresConfirmation(t *testing.T) {
	t.Parallel()

	svc, store, _, _ := newTestService(t)
	ctx := context.Background()

	store.addParticipant(registered(1))
	if _, err := svc.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if _, err := svc.Stop(ctx, false); !errors.Is(err, course.ErrNotConfirmed) {
		t.Fatalf("Stop without confirmation error = %v, want ErrNotConfirmed", err)
	}

	count, err := svc.Stop(ctx, true)
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if count != 1 {
		t.Errorf("reset count = %d, want 1", count)
	}

	clock, _ := store.GetCourseClock(ctx)
	if clock.IsActive {
		t.Error("clock still active after stop")
	}
	if p := store.participant(t, 1); p.CourseStage != database.StageNotStarted || p.CurrentTask != 0 {
		t.Errorf("participant not reset: stage %s task %d", p.CourseStage, p.CurrentTask)
	}

	if _, err := svc.Stop(ctx, true); !errors.Is(err, course.ErrCourseInactive) {
		t.Errorf("Stop on inactive course error = %v, want ErrCourseInactive", err)
	}
}

func TestBroadcastTask(t *testing.T) {
	t.Parallel()

	svc, store, msg, _ := newTestService(t)
	ctx := context.Background()

	store.addParticipant(registered(1))
	store.addParticipant(registered(2))
	store.addTask(1, "Write about your goals")

	if _, err := svc.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := svc.BroadcastTask(ctx); err != nil {
		t.Fatalf("BroadcastTask: %v", err)
	}

	// First broadcast bumps the clock from day zero to day one.
	clock, _ := store.GetCourseClock(ctx)
	if clock.CurrentDay != 1 {
		t.Errorf("clock day = %d, want 1", clock.CurrentDay)
	}

	for _, id := range []int64{1, 2} {
		if p := store.participant(t, id); p.CurrentTask != 1 {
			t.Errorf("participant %d current task = %d, want 1", id, p.CurrentTask)
		}
		if got := msg.sentTo(id); len(got) != 1 {
			t.Errorf("participant %d received %d messages, want 1", id, len(got))
		}
	}

	// Re-firing the broadcast resends the same day without advancing anyone.
	if err := svc.BroadcastTask(ctx); err != nil {
		t.Fatalf("second BroadcastTask: %v", err)
	}
	if clock, _ := store.GetCourseClock(ctx); clock.CurrentDay != 1 {
		t.Errorf("clock day after rebroadcast = %d, want 1", clock.CurrentDay)
	}
	if p := store.participant(t, 1); p.CurrentTask != 1 {
		t.Errorf("current task after rebroadcast = %d, want 1", p.CurrentTask)
	}
}

func TestBroadcastTaskSkipsWhenInactive(t *testing.T) {
	t.Parallel()

	svc, store, msg, _ := newTestService(t)
	store.addParticipant(enrolled(1, 0))
	store.addTask(1, "Task")

	if err := svc.BroadcastTask(context.Background()); err != nil {
		t.Fatalf("BroadcastTask: %v", err)
	}
	if got := msg.sentTo(1); len(got) != 0 {
		t.Errorf("broadcast sent %d messages with inactive clock, want 0", len(got))
	}
}

func TestBroadcastTaskMissingContent(t *testing.T) {
	t.Parallel()

	svc, store, _, rep := newTestService(t)
	ctx := context.Background()

	store.addParticipant(registered(1))
	if _, err := svc.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	err := svc.BroadcastTask(ctx)
	if !errors.Is(err, course.ErrNoTaskContent) {
		t.Fatalf("BroadcastTask error = %v, want ErrNoTaskContent", err)
	}
	if len(rep.events) == 0 {
		t.Error("missing content did not produce an operational event")
	}
}

func TestBroadcastMarksBlockedOnPermanentFailure(t *testing.T) {
	t.Parallel()

	svc, store, msg, _ := newTestService(t)
	ctx := context.Background()

	store.addParticipant(registered(1))
	store.addParticipant(registered(2))
	store.addTask(1, "Task")
	msg.failWith[1] = fmt.Errorf("send: %w", course.ErrDeliveryPermanent)

	if _, err := svc.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := svc.BroadcastTask(ctx); err != nil {
		t.Fatalf("BroadcastTask: %v", err)
	}

	if p := store.participant(t, 1); !p.IsBlocked {
		t.Error("permanently unreachable participant not marked blocked")
	}
	if p := store.participant(t, 1); p.CurrentTask != 0 {
		t.Errorf("failed delivery still assigned task %d", p.CurrentTask)
	}
	if p := store.participant(t, 2); p.CurrentTask != 1 {
		t.Errorf("healthy participant task = %d, want 1", p.CurrentTask)
	}
}

func TestSendReminder(t *testing.T) {
	t.Parallel()

	svc, store, msg, _ := newTestService(t)
	ctx := context.Background()

	store.clock = &database.CourseClock{ID: 1, IsActive: true, CurrentDay: 3}
	store.addParticipant(enrolled(1, 3)) // still on today's task
	store.addParticipant(enrolled(2, 4)) // already submitted
	waiting := enrolled(3, 4)
	waiting.SetCourse(database.WaitingTask(3))
	store.addParticipant(waiting)

	if err := svc.SendReminder(ctx, 1); err != nil {
		t.Fatalf("SendReminder: %v", err)
	}

	if got := msg.sentTo(1); len(got) != 1 {
		t.Errorf("pending participant received %d reminders, want 1", len(got))
	}
	for _, id := range []int64{2, 3} {
		if got := msg.sentTo(id); len(got) != 0 {
			t.Errorf("submitted participant %d received %d reminders, want 0", id, len(got))
		}
	}

	// Reminders never mutate progress.
	if p := store.participant(t, 1); p.CurrentTask != 3 || p.Penalties != 0 {
		t.Errorf("reminder mutated participant: task %d penalties %d", p.CurrentTask, p.Penalties)
	}

	if err := svc.SendReminder(ctx, 4); err == nil {
		t.Error("SendReminder(4) succeeded, want error")
	}
}

func TestCheckCompletion(t *testing.T) {
	t.Parallel()

	svc, store, msg, rep := newTestService(t)
	ctx := context.Background()

	const day = 5
	store.clock = &database.CourseClock{ID: 1, IsActive: true, CurrentDay: day}

	store.addParticipant(enrolled(1, day))   // missed today: penalty
	store.addParticipant(enrolled(2, day+1)) // submitted: untouched
	store.addParticipant(enrolled(3, 0))     // enrolled after broadcast: advance free

	twoDown := enrolled(4, day) // third penalty: excluded and banned
	twoDown.Penalties = 2
	store.addParticipant(twoDown)

	if err := svc.CheckCompletion(ctx); err != nil {
		t.Fatalf("CheckCompletion: %v", err)
	}

	p1 := store.participant(t, 1)
	if p1.Penalties != 1 || p1.CurrentTask != day+1 {
		t.Errorf("missed participant: penalties %d task %d, want 1 and %d", p1.Penalties, p1.CurrentTask, day+1)
	}

	p2 := store.participant(t, 2)
	if p2.Penalties != 0 || p2.CurrentTask != day+1 {
		t.Errorf("submitted participant touched: penalties %d task %d", p2.Penalties, p2.CurrentTask)
	}

	p3 := store.participant(t, 3)
	if p3.Penalties != 0 || p3.CurrentTask != day+1 {
		t.Errorf("idle participant: penalties %d task %d, want 0 and %d", p3.Penalties, p3.CurrentTask, day+1)
	}

	p4 := store.participant(t, 4)
	if p4.Penalties != 3 || p4.CourseStage != database.StageExcluded {
		t.Errorf("third penalty: penalties %d stage %s, want 3 excluded", p4.Penalties, p4.CourseStage)
	}
	if len(msg.banned) != 1 || msg.banned[0] != 4 {
		t.Errorf("banned = %v, want [4]", msg.banned)
	}

	if rep.tallies == nil {
		t.Fatal("no penalty report")
	}
	if got := rep.tallies[1]; len(got) != 1 || got[0] != 1 {
		t.Errorf("tally for count 1 = %v, want [1]", got)
	}
	if got := rep.tallies[3]; len(got) != 1 || got[0] != 4 {
		t.Errorf("tally for count 3 = %v, want [4]", got)
	}

	// Nobody deliverable is left at or below the closed day.
	remaining, _ := store.ListEnrolled(ctx)
	for _, p := range remaining {
		if p.CurrentTask <= day {
			t.Errorf("participant %d left on task %d after day %d closed", p.TelegramID, p.CurrentTask, day)
		}
	}

	// Re-running the check against the same day penalizes nobody twice:
	// everyone pending was already advanced past it.
	if err := svc.CheckCompletion(ctx); err != nil {
		t.Fatalf("second CheckCompletion: %v", err)
	}
	if p := store.participant(t, 1); p.Penalties != 1 {
		t.Errorf("re-run added penalty: %d, want 1", p.Penalties)
	}
}

func TestAdvanceDay(t *testing.T) {
	t.Parallel()

	svc, store, msg, rep := newTestService(t)
	ctx := context.Background()

	start := time.Now().UTC()
	store.clock = &database.CourseClock{
		ID: 1, IsActive: true, CurrentDay: 4,
		StartDate: sqlNullTime(start),
	}

	if err := svc.AdvanceDay(ctx); err != nil {
		t.Fatalf("AdvanceDay: %v", err)
	}
	clock, _ := store.GetCourseClock(ctx)
	if clock.CurrentDay != 5 || !clock.IsActive {
		t.Errorf("clock = day %d active %v, want day 5 active", clock.CurrentDay, clock.IsActive)
	}

	// Past the final day the clock deactivates and finishers are congratulated.
	store.clock.CurrentDay = 10
	finisher := enrolled(7, 11)
	finisher.SetCourse(database.Completed())
	finisher.Penalties = 1
	store.addParticipant(finisher)

	if err := svc.AdvanceDay(ctx); err != nil {
		t.Fatalf("AdvanceDay past final: %v", err)
	}
	clock, _ = store.GetCourseClock(ctx)
	if clock.IsActive || clock.CurrentDay != 10 {
		t.Errorf("clock = day %d active %v, want day 10 inactive", clock.CurrentDay, clock.IsActive)
	}
	if got := msg.sentTo(7); len(got) != 1 {
		t.Errorf("finisher received %d messages, want 1", len(got))
	}
	if rep.reported != 1 {
		t.Errorf("completion report = %d finishers, want 1", rep.reported)
	}

	// Inactive clock: advancing is a no-op.
	if err := svc.AdvanceDay(ctx); err != nil {
		t.Fatalf("AdvanceDay on inactive clock: %v", err)
	}
	if clock, _ := store.GetCourseClock(ctx); clock.CurrentDay != 10 {
		t.Errorf("inactive clock moved to day %d", clock.CurrentDay)
	}
}

func TestSendFinalMessages(t *testing.T) {
	t.Parallel()

	svc, store, msg, _ := newTestService(t)
	ctx := context.Background()

	store.clock = &database.CourseClock{ID: 1, IsActive: false, CurrentDay: 10}
	for n := 1; n <= 3; n++ {
		store.finals[n] = &database.FinalMessage{Number: n, Body: fmt.Sprintf("Closing %d", n)}
	}

	finisher := enrolled(1, 11)
	finisher.SetCourse(database.Completed())
	store.addParticipant(finisher)
	store.addParticipant(enrolled(2, 5)) // never reached the final task

	// Missed the final task: penalized past it but still in progress. They
	// reached day ten, so the closing sequence includes them.
	straggler := enrolled(3, 11)
	straggler.Penalties = 1
	store.addParticipant(straggler)

	if err := svc.SendFinalMessages(ctx); err != nil {
		t.Fatalf("SendFinalMessages: %v", err)
	}

	if got := msg.sentTo(1); len(got) != 3 {
		t.Errorf("finisher received %d closing messages, want 3", len(got))
	}
	if got := msg.sentTo(2); len(got) != 0 {
		t.Errorf("mid-course participant received %d closing messages, want 0", len(got))
	}
	if got := msg.sentTo(3); len(got) != 3 {
		t.Errorf("participant who missed the final task received %d closing messages, want 3", len(got))
	}

	p := store.participant(t, 1)
	if !p.FinalMessage1Sent || !p.FinalMessage2Sent || !p.FinalMessage3Sent {
		t.Error("sent flags not all set")
	}

	// Re-firing the task sends nothing: every flag is already set.
	if err := svc.SendFinalMessages(ctx); err != nil {
		t.Fatalf("second SendFinalMessages: %v", err)
	}
	if got := msg.sentTo(1); len(got) != 3 {
		t.Errorf("rerun delivered %d total messages, want still 3", len(got))
	}
}

func TestSendFinalMessagesGatedByClock(t *testing.T) {
	t.Parallel()

	svc, store, msg, _ := newTestService(t)
	ctx := context.Background()

	store.clock = &database.CourseClock{ID: 1, IsActive: true, CurrentDay: 10}
	store.finals[1] = &database.FinalMessage{Number: 1, Body: "Closing"}
	finisher := enrolled(1, 11)
	finisher.SetCourse(database.Completed())
	store.addParticipant(finisher)

	if err := svc.SendFinalMessages(ctx); err != nil {
		t.Fatalf("SendFinalMessages: %v", err)
	}
	if got := msg.sentTo(1); len(got) != 0 {
		t.Errorf("closing messages sent while course active: %d", len(got))
	}
}

func TestAdmitLateJoiner(t *testing.T) {
	t.Parallel()

	t.Run("No active course", func(t *testing.T) {
		t.Parallel()

		svc, store, _, _ := newTestService(t)
		store.addParticipant(registered(1))

		admission, err := svc.AdmitLateJoiner(context.Background(), 1)
		if err != nil {
			t.Fatalf("AdmitLateJoiner: %v", err)
		}
		if admission != course.AdmissionWaiting {
			t.Errorf("admission = %v, want AdmissionWaiting", admission)
		}
	})

	t.Run("Day zero joins the first broadcast", func(t *testing.T) {
		t.Parallel()

		svc, store, _, _ := newTestService(t)
		store.clock = &database.CourseClock{ID: 1, IsActive: true, CurrentDay: 0}
		store.addParticipant(registered(1))

		admission, err := svc.AdmitLateJoiner(context.Background(), 1)
		if err != nil {
			t.Fatalf("AdmitLateJoiner: %v", err)
		}
		if admission != course.AdmissionEnrolled {
			t.Errorf("admission = %v, want AdmissionEnrolled", admission)
		}
		if p := store.participant(t, 1); p.CourseStage != database.StageInProgress || p.CurrentTask != 0 {
			t.Errorf("participant = stage %s task %d, want in_progress task 0", p.CourseStage, p.CurrentTask)
		}
	})

	t.Run("Day one gets the task immediately", func(t *testing.T) {
		t.Parallel()

		svc, store, msg, _ := newTestService(t)
		store.clock = &database.CourseClock{ID: 1, IsActive: true, CurrentDay: 1}
		store.addTask(1, "First task")
		store.addParticipant(registered(1))

		admission, err := svc.AdmitLateJoiner(context.Background(), 1)
		if err != nil {
			t.Fatalf("AdmitLateJoiner: %v", err)
		}
		if admission != course.AdmissionDayOne {
			t.Errorf("admission = %v, want AdmissionDayOne", admission)
		}
		if p := store.participant(t, 1); p.CourseStage != database.StageInProgress || p.CurrentTask != 1 {
			t.Errorf("participant = stage %s task %d, want in_progress task 1", p.CourseStage, p.CurrentTask)
		}
		if got := msg.sentTo(1); len(got) != 2 {
			t.Errorf("received %d messages, want greeting plus task", len(got))
		}
	})

	t.Run("Mid-course joins limited", func(t *testing.T) {
		t.Parallel()

		svc, store, msg, _ := newTestService(t)
		store.clock = &database.CourseClock{ID: 1, IsActive: true, CurrentDay: 6}
		store.addTask(6, "Sixth task")
		store.addParticipant(registered(1))

		admission, err := svc.AdmitLateJoiner(context.Background(), 1)
		if err != nil {
			t.Fatalf("AdmitLateJoiner: %v", err)
		}
		if admission != course.AdmissionLimited {
			t.Errorf("admission = %v, want AdmissionLimited", admission)
		}
		p := store.participant(t, 1)
		if p.CourseStage != database.StageLimited || p.CourseStageDay != 6 || p.CurrentTask != 6 {
			t.Errorf("participant = stage %s stage day %d task %d, want limited on 6", p.CourseStage, p.CourseStageDay, p.CurrentTask)
		}
		if got := msg.sentTo(1); len(got) != 2 {
			t.Errorf("received %d messages, want greeting plus task", len(got))
		}
	})
}

func TestSubmitPost(t *testing.T) {
	t.Parallel()

	svc, store, _, _ := newTestService(t)
	ctx := context.Background()

	store.addParticipant(enrolled(1, 4))

	completed, err := svc.SubmitPost(ctx, 1, 4, "https://t.me/mychannel/44")
	if err != nil {
		t.Fatalf("SubmitPost: %v", err)
	}
	if completed {
		t.Error("mid-course submission reported as completion")
	}

	p := store.participant(t, 1)
	if p.CourseStage != database.StageWaitingTask || p.CourseStageDay != 4 || p.CurrentTask != 5 {
		t.Errorf("participant = stage %s stage day %d task %d, want waiting_task 4 with task 5",
			p.CourseStage, p.CourseStageDay, p.CurrentTask)
	}
	if sub, _ := store.GetSubmission(ctx, 1, 4); sub == nil || sub.Link != "https://t.me/mychannel/44" {
		t.Errorf("submission = %+v, want stored link", sub)
	}

	// The last day's submission completes the course.
	store.addParticipant(enrolled(2, 10))
	completed, err = svc.SubmitPost(ctx, 2, 10, "https://t.me/other/10")
	if err != nil {
		t.Fatalf("SubmitPost final day: %v", err)
	}
	if !completed {
		t.Error("final day submission not reported as completion")
	}
	if p := store.participant(t, 2); p.CourseStage != database.StageCompleted {
		t.Errorf("final day stage = %s, want completed", p.CourseStage)
	}
}

func TestSubmissionWinsOverCompletionCheck(t *testing.T) {
	t.Parallel()

	svc, store, _, _ := newTestService(t)
	ctx := context.Background()

	const day = 5
	store.clock = &database.CourseClock{ID: 1, IsActive: true, CurrentDay: day}
	store.addParticipant(enrolled(1, day))

	// The submission lands first; the check's conditional advance must miss.
	if _, err := svc.SubmitPost(ctx, 1, day, "https://t.me/mychannel/5"); err != nil {
		t.Fatalf("SubmitPost: %v", err)
	}
	if err := svc.CheckCompletion(ctx); err != nil {
		t.Fatalf("CheckCompletion: %v", err)
	}

	p := store.participant(t, 1)
	if p.Penalties != 0 {
		t.Errorf("submitted participant penalized: %d", p.Penalties)
	}
	if p.CurrentTask != day+1 {
		t.Errorf("current task = %d, want %d", p.CurrentTask, day+1)
	}
}

func sqlNullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: true}
}
