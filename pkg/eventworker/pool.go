package eventworker

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// EventJob representa un job de procesamiento de evento del hub
type EventJob struct {
	Topic   string
	Key     string
	Handler func(ctx context.Context) error
}

// PoolStats contiene métricas en tiempo real del worker pool
type PoolStats struct {
	NumWorkers      int            `json:"num_workers"`
	QueueSize       int            `json:"queue_size"`
	ActiveWorkers   int            `json:"active_workers"`
	TotalDispatched int64          `json:"total_dispatched"`
	TotalProcessed  int64          `json:"total_processed"`
	TotalDropped    int64          `json:"total_dropped"`
	TotalErrors     int64          `json:"total_errors"`
	WorkerStats     []WorkerStats  `json:"worker_stats"`
	ActiveTopics    map[string]int `json:"active_topics"` // topic|key -> worker_id
}

// WorkerStats contiene métricas por worker individual
type WorkerStats struct {
	WorkerID      int   `json:"worker_id"`
	QueueDepth    int   `json:"queue_depth"`
	IsProcessing  bool  `json:"is_processing"`
	JobsProcessed int64 `json:"jobs_processed"`
}

type activeTopicEntry struct {
	workerID  int
	updatedAt time.Time
}

// EventWorkerPool maneja un pool de workers para procesar eventos de
// orquestación (transiciones de salud, progreso de sync, notificaciones).
// El sharding por (topic, key) garantiza orden dentro de un mismo tópico.
type EventWorkerPool struct {
	numWorkers int
	queueSize  int
	workers    []*worker
	wg         sync.WaitGroup
	stopOnce   sync.Once
	stopped    int32
	stopCh     chan struct{}

	// Métricas
	totalDispatched int64
	totalProcessed  int64
	totalDropped    int64
	totalErrors     int64
	activeTopicsMu  sync.RWMutex
	activeTopics    map[string]activeTopicEntry
	startTime       time.Time

	// Hooks para monitoreo externo
	OnWorkerStart func(workerID int, topicKey string)
	OnWorkerEnd   func(workerID int, topicKey string)
}

// worker representa un worker individual con su cola
type worker struct {
	id            int
	jobQueue      chan EventJob
	ctx           context.Context
	cancel        context.CancelFunc
	isProcessing  int32            // atomic: 1 if processing, 0 if idle
	jobsProcessed int64            // atomic counter
	pool          *EventWorkerPool // referencia al pool para actualizar métricas globales
}

// NewEventWorkerPool crea un nuevo pool de workers para eventos
func NewEventWorkerPool(numWorkers, queueSize int) *EventWorkerPool {
	if numWorkers <= 0 {
		numWorkers = 6
	}
	if queueSize <= 0 {
		queueSize = 100
	}

	pool := &EventWorkerPool{
		numWorkers:   numWorkers,
		queueSize:    queueSize,
		workers:      make([]*worker, numWorkers),
		activeTopics: make(map[string]activeTopicEntry),
		stopCh:       make(chan struct{}),
		startTime:    time.Now(),
	}

	return pool
}

// Start inicia todos los workers del pool
func (p *EventWorkerPool) Start(ctx context.Context) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-p.stopCh:
				return
			case <-ticker.C:
				now := time.Now()
				p.activeTopicsMu.Lock()
				for k, v := range p.activeTopics {
					if !v.updatedAt.IsZero() && now.Sub(v.updatedAt) > 2*time.Second {
						delete(p.activeTopics, k)
					}
				}
				p.activeTopicsMu.Unlock()
			}
		}
	}()

	for i := 0; i < p.numWorkers; i++ {
		workerCtx, cancel := context.WithCancel(ctx)
		w := &worker{
			id:       i,
			jobQueue: make(chan EventJob, p.queueSize),
			ctx:      workerCtx,
			cancel:   cancel,
			pool:     p,
		}
		p.workers[i] = w

		p.wg.Add(1)
		go w.run(&p.wg)
	}

	logrus.Infof("[EVENT_POOL] Started with %d workers, queue size: %d", p.numWorkers, p.queueSize)
}

// TryDispatch envía un job al worker apropiado (no bloqueante) y retorna
// si el job pudo encolarse. Útil para aplicar backpressure.
func (p *EventWorkerPool) TryDispatch(job EventJob) bool {
	if atomic.LoadInt32(&p.stopped) == 1 {
		atomic.AddInt64(&p.totalDropped, 1)
		return false
	}

	shard := p.shardForTopic(job.Topic, job.Key)
	atomic.AddInt64(&p.totalDispatched, 1)

	// Track active topic
	topicKey := job.Topic + "|" + job.Key
	p.activeTopicsMu.Lock()
	p.activeTopics[topicKey] = activeTopicEntry{workerID: shard, updatedAt: time.Now()}
	p.activeTopicsMu.Unlock()

	sent := func() (ok bool) {
		defer func() {
			if r := recover(); r != nil {
				ok = false
			}
		}()
		select {
		case p.workers[shard].jobQueue <- job:
			return true
		default:
			return false
		}
	}()

	if sent {
		return true
	}
	p.activeTopicsMu.Lock()
	delete(p.activeTopics, topicKey)
	p.activeTopicsMu.Unlock()

	atomic.AddInt64(&p.totalDropped, 1)
	logrus.Warnf("[EVENT_POOL] Worker %d queue full (or stopped), dropping job for %s|%s",
		shard, job.Topic, job.Key)
	return false
}

// Dispatch envía un job al worker apropiado (no bloqueante)
func (p *EventWorkerPool) Dispatch(job EventJob) {
	_ = p.TryDispatch(job)
}

// Stop detiene el pool de forma graceful
func (p *EventWorkerPool) Stop() {
	p.stopOnce.Do(func() {
		atomic.StoreInt32(&p.stopped, 1)
		close(p.stopCh)
		logrus.Info("[EVENT_POOL] Stopping workers...")

		// Cancelar contextos y cerrar colas
		for _, w := range p.workers {
			w.cancel()
			close(w.jobQueue)
		}

		// Esperar a que terminen los workers
		p.wg.Wait()

		logrus.Info("[EVENT_POOL] All workers stopped")
	})
}

// shardForTopic calcula el shard (worker) para un tópico usando hash consistente
func (p *EventWorkerPool) shardForTopic(topic, key string) int {
	h := fnv.New32a()
	h.Write([]byte(topic + "|" + key))
	return int(h.Sum32() % uint32(p.numWorkers))
}

// GetStats retorna estadísticas en tiempo real del pool
func (p *EventWorkerPool) GetStats() PoolStats {
	workerStats := make([]WorkerStats, len(p.workers))
	activeWorkers := 0

	for i, w := range p.workers {
		isProcessing := atomic.LoadInt32(&w.isProcessing) == 1
		if isProcessing {
			activeWorkers++
		}

		workerStats[i] = WorkerStats{
			WorkerID:      w.id,
			QueueDepth:    len(w.jobQueue),
			IsProcessing:  isProcessing,
			JobsProcessed: atomic.LoadInt64(&w.jobsProcessed),
		}
	}

	now := time.Now()
	p.activeTopicsMu.Lock()
	activeSnapshot := make(map[string]int, len(p.activeTopics))
	for k, v := range p.activeTopics {
		if !v.updatedAt.IsZero() && now.Sub(v.updatedAt) > 2*time.Second {
			delete(p.activeTopics, k)
			continue
		}
		activeSnapshot[k] = v.workerID
	}
	p.activeTopicsMu.Unlock()

	return PoolStats{
		NumWorkers:      p.numWorkers,
		QueueSize:       p.queueSize,
		ActiveWorkers:   activeWorkers,
		TotalDispatched: atomic.LoadInt64(&p.totalDispatched),
		TotalProcessed:  atomic.LoadInt64(&p.totalProcessed),
		TotalDropped:    atomic.LoadInt64(&p.totalDropped),
		TotalErrors:     atomic.LoadInt64(&p.totalErrors),
		WorkerStats:     workerStats,
		ActiveTopics:    activeSnapshot,
	}
}

// run ejecuta el loop principal del worker
func (w *worker) run(wg *sync.WaitGroup) {
	defer wg.Done()

	logrus.Debugf("[EVENT_POOL] Worker %d started", w.id)

	for {
		select {
		case job, ok := <-w.jobQueue:
			if !ok {
				// Canal cerrado, terminar
				logrus.Debugf("[EVENT_POOL] Worker %d shutting down", w.id)
				return
			}

			// Procesar job con defer para garantizar limpieza
			func() {
				topicKey := job.Topic + "|" + job.Key

				if w.pool.OnWorkerStart != nil {
					w.pool.OnWorkerStart(w.id, topicKey)
				}
				atomic.StoreInt32(&w.isProcessing, 1)
				defer func() {
					if r := recover(); r != nil {
						atomic.AddInt64(&w.pool.totalErrors, 1)
						logrus.Errorf("[EVENT_POOL] Worker %d panic for %s: %v", w.id, topicKey, r)
					}
					if w.pool.OnWorkerEnd != nil {
						w.pool.OnWorkerEnd(w.id, topicKey)
					}
					atomic.StoreInt32(&w.isProcessing, 0)
					atomic.AddInt64(&w.jobsProcessed, 1)
					atomic.AddInt64(&w.pool.totalProcessed, 1)
				}()

				err := job.Handler(w.ctx)

				if err != nil {
					atomic.AddInt64(&w.pool.totalErrors, 1)
					logrus.WithError(err).Errorf("[EVENT_POOL] Worker %d job failed for %s|%s",
						w.id, job.Topic, job.Key)
				}
			}()

		case <-w.ctx.Done():
			// Contexto cancelado, procesar jobs restantes antes de terminar
			logrus.Debugf("[EVENT_POOL] Worker %d context cancelled, draining queue...", w.id)
			w.drainQueue()
			return
		}
	}
}

// drainQueue procesa jobs pendientes antes del shutdown
func (w *worker) drainQueue() {
	for {
		select {
		case job, ok := <-w.jobQueue:
			if !ok {
				return
			}
			// Procesar job restante
			func() {
				defer func() {
					if r := recover(); r != nil {
						atomic.AddInt64(&w.pool.totalErrors, 1)
						logrus.Errorf("[EVENT_POOL] Worker %d drain panic: %v", w.id, r)
					}
				}()
				if err := job.Handler(w.ctx); err != nil {
					logrus.WithError(err).Errorf("[EVENT_POOL] Worker %d drain job failed", w.id)
				}
			}()
		default:
			// No hay más jobs
			return
		}
	}
}
